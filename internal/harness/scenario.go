package harness

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tagstate/internal/protocol"
	"github.com/roach88/tagstate/internal/query"
)

// DefaultStart is the time of block 1 when a scenario names none.
const DefaultStart = "2016-01-01T00:00:00"

// BlockInterval is the default spacing of scenario blocks in seconds.
const BlockInterval = 3

// Scenario is one end-to-end test.
type Scenario struct {
	// Name identifies the scenario and its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Config is CUE source unified with the default configuration.
	Config string `yaml:"config,omitempty"`

	// Start is the timestamp of block 1.
	Start string `yaml:"start,omitempty"`

	Blocks     []BlockStep `yaml:"blocks"`
	Queries    []QueryStep `yaml:"queries,omitempty"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// BlockStep applies one block, or pops blocks when Pop is set.
type BlockStep struct {
	Time   string   `yaml:"time,omitempty"`
	Skip   int64    `yaml:"skip,omitempty"`
	Ops    []OpStep `yaml:"ops,omitempty"`
	Expect string   `yaml:"expect,omitempty"`
	Pop    int      `yaml:"pop,omitempty"`
}

// Outcome values recorded for a block step besides error codes.
const (
	OutcomeApplied = "applied"
	OutcomePopped  = "popped"
)

// OpStep is an operation written as a single-key map from kind to payload.
type OpStep struct {
	Kind    protocol.OpKind
	Payload map[string]any
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *OpStep) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]map[string]any
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("line %d: operation must be {kind: {fields}}: %w", node.Line, err)
	}
	if len(m) != 1 {
		return fmt.Errorf("line %d: operation must have exactly one kind, got %d", node.Line, len(m))
	}
	for kind, payload := range m {
		o.Kind = protocol.OpKind(kind)
		o.Payload = payload
	}
	if o.Payload == nil {
		o.Payload = map[string]any{}
	}
	return nil
}

// Operation decodes the step through the wire envelope, so scenario files
// accept exactly what the journal and the CLI accept.
func (o OpStep) Operation() (protocol.Operation, error) {
	payload, err := json.Marshal(o.Payload)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Kind, err)
	}
	envelope, err := json.Marshal([]any{o.Kind, json.RawMessage(payload)})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", o.Kind, err)
	}
	return protocol.UnmarshalOperation(envelope)
}

// QueryStep runs one named query against the final state. Exactly one of
// the query fields is set.
type QueryStep struct {
	Name string `yaml:"name"`

	Discussions      *query.DiscussionQuery `yaml:"discussions,omitempty"`
	Tag              string                 `yaml:"tag,omitempty"`
	TrendingTags     *TrendingTagsArgs      `yaml:"trending_tags,omitempty"`
	TagsOfComment    string                 `yaml:"tags_of_comment,omitempty"`
	TagsUsedByAuthor string                 `yaml:"tags_used_by_author,omitempty"`
	Peers            *PeersArgs             `yaml:"peers,omitempty"`
	TopAuthors       *TopAuthorsArgs        `yaml:"top_authors,omitempty"`
}

// TrendingTagsArgs are the arguments of a trending_tags query.
type TrendingTagsArgs struct {
	After string `yaml:"after,omitempty"`
	Limit int    `yaml:"limit"`
}

// PeersArgs are the arguments of a peers query.
type PeersArgs struct {
	Voter string `yaml:"voter"`
	Limit int    `yaml:"limit"`
}

// TopAuthorsArgs are the arguments of a top_authors query.
type TopAuthorsArgs struct {
	Tag   string `yaml:"tag"`
	Limit int    `yaml:"limit"`
}

func (q QueryStep) kinds() int {
	n := 0
	for _, set := range []bool{
		q.Discussions != nil,
		q.Tag != "",
		q.TrendingTags != nil,
		q.TagsOfComment != "",
		q.TagsUsedByAuthor != "",
		q.Peers != nil,
		q.TopAuthors != nil,
	} {
		if set {
			n++
		}
	}
	return n
}

// Assertion checks the final state.
type Assertion struct {
	Type string `yaml:"type"`

	Block   uint32         `yaml:"block,omitempty"`
	Tag     string         `yaml:"tag,omitempty"`
	Comment string         `yaml:"comment,omitempty"`
	Tags    []string       `yaml:"tags,omitempty"`
	Query   string         `yaml:"query,omitempty"`
	Order   []string       `yaml:"order,omitempty"`
	Voter   string         `yaml:"voter,omitempty"`
	Peer    string         `yaml:"peer,omitempty"`
	Account string         `yaml:"account,omitempty"`
	Expect  map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertHead      = "head"
	AssertTagStats  = "tag_stats"
	AssertEntryTags = "entry_tags"
	AssertOrder     = "order"
	AssertPeerStats = "peer_stats"
	AssertComment   = "comment"
	AssertAccount   = "account"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so a typo cannot silently disable a check.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if len(s.Blocks) == 0 {
		return errors.New("blocks list is required and must be non-empty")
	}
	if s.Start != "" {
		if _, err := protocol.ParseTime(s.Start); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}

	for i, b := range s.Blocks {
		if b.Pop < 0 {
			return fmt.Errorf("blocks[%d]: pop must be positive", i)
		}
		if b.Pop > 0 && (len(b.Ops) > 0 || b.Time != "" || b.Skip != 0 || b.Expect != "") {
			return fmt.Errorf("blocks[%d]: pop cannot be combined with other fields", i)
		}
		if b.Time != "" && b.Skip != 0 {
			return fmt.Errorf("blocks[%d]: time and skip are exclusive", i)
		}
		if b.Time != "" {
			if _, err := protocol.ParseTime(b.Time); err != nil {
				return fmt.Errorf("blocks[%d].time: %w", i, err)
			}
		}
		for j, op := range b.Ops {
			if _, err := op.Operation(); err != nil {
				return fmt.Errorf("blocks[%d].ops[%d]: %w", i, j, err)
			}
		}
	}

	names := make(map[string]bool, len(s.Queries))
	for i, q := range s.Queries {
		if q.Name == "" {
			return fmt.Errorf("queries[%d]: name is required", i)
		}
		if names[q.Name] {
			return fmt.Errorf("queries[%d]: duplicate name %q", i, q.Name)
		}
		names[q.Name] = true
		if n := q.kinds(); n != 1 {
			return fmt.Errorf("queries[%d]: exactly one query kind must be set, got %d", i, n)
		}
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, a, names); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(i int, a Assertion, queries map[string]bool) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", i)
	case AssertHead:
		return nil
	case AssertTagStats:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for tag_stats", i)
		}
	case AssertEntryTags:
		if _, _, err := splitComment(a.Comment); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	case AssertOrder:
		if !queries[a.Query] {
			return fmt.Errorf("assertions[%d]: unknown query %q", i, a.Query)
		}
	case AssertPeerStats:
		if a.Voter == "" || a.Peer == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: voter, peer and expect are required for peer_stats", i)
		}
	case AssertComment:
		if _, _, err := splitComment(a.Comment); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for comment", i)
		}
	case AssertAccount:
		if a.Account == "" || len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: account and expect are required", i)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
	}
	return nil
}

// splitComment parses "author/permlink".
func splitComment(ref string) (string, string, error) {
	author, permlink, ok := strings.Cut(ref, "/")
	if !ok || author == "" || permlink == "" {
		return "", "", fmt.Errorf("comment %q must be author/permlink", ref)
	}
	return author, permlink, nil
}
