package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/roach88/tagstate/internal/chain"
	"github.com/roach88/tagstate/internal/query"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Index    int
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion[%d] %s failed\n  Expected: %s\n  Actual: %s",
		e.Index, e.Type, e.Expected, e.Actual)
}

// AssertionContext gives assertions access to the final state.
type AssertionContext struct {
	Snapshot *chain.Snapshot
	Query    *query.Service
}

// EvaluateAssertions evaluates every assertion and returns the messages of
// the failed ones.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertHead:
			err = assertHead(i, actx, a)
		case AssertTagStats:
			err = assertTagStats(i, actx, a)
		case AssertEntryTags:
			err = assertEntryTags(i, actx, a)
		case AssertOrder:
			err = assertOrder(i, result, a)
		case AssertPeerStats:
			err = assertPeerStats(i, actx, a)
		case AssertComment:
			err = assertComment(i, actx, a)
		case AssertAccount:
			err = assertAccount(i, actx, a)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, a.Type)
		}
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertHead(i int, actx *AssertionContext, a Assertion) error {
	head := actx.Snapshot.Head().HeadBlockNumber
	if head != a.Block {
		return &AssertionError{i, a.Type, fmt.Sprint(a.Block), fmt.Sprint(head)}
	}
	return nil
}

func assertTagStats(i int, actx *AssertionContext, a Assertion) error {
	info, ok := actx.Query.Tag(a.Tag)
	if !ok {
		return &AssertionError{i, a.Type, fmt.Sprintf("stats for tag %q", a.Tag), "no stats"}
	}
	return matchExpect(i, a, info)
}

func assertEntryTags(i int, actx *AssertionContext, a Assertion) error {
	author, permlink, err := splitComment(a.Comment)
	if err != nil {
		return err
	}
	got := []string{}
	for _, d := range actx.Query.TagsOfComment(author, permlink) {
		got = append(got, d.Tag)
	}
	sort.Strings(got)
	want := slices.Clone(a.Tags)
	if want == nil {
		want = []string{}
	}
	sort.Strings(want)
	if !slices.Equal(got, want) {
		return &AssertionError{i, a.Type, fmt.Sprintf("%s tagged %q", a.Comment, want), fmt.Sprintf("%q", got)}
	}
	return nil
}

func assertOrder(i int, result *Result, a Assertion) error {
	out, ok := result.Query(a.Query)
	if !ok {
		return &AssertionError{i, a.Type, fmt.Sprintf("output of query %q", a.Query), "query failed or missing"}
	}
	ds, ok := out.Value.([]query.Discussion)
	if !ok {
		return fmt.Errorf("assertion[%d]: query %q is a %s query, not a listing", i, a.Query, out.Kind)
	}
	got := make([]string, len(ds))
	for j, d := range ds {
		got[j] = d.Author + "/" + d.Permlink
	}
	want := a.Order
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(got, want) {
		return &AssertionError{i, a.Type, strings.Join(want, ", "), strings.Join(got, ", ")}
	}
	return nil
}

func assertPeerStats(i int, actx *AssertionContext, a Assertion) error {
	p, ok := actx.Query.PeerStats(a.Voter, a.Peer)
	if !ok {
		return &AssertionError{i, a.Type, fmt.Sprintf("peer stats %s->%s", a.Voter, a.Peer), "no record"}
	}
	return matchExpect(i, a, p)
}

func assertComment(i int, actx *AssertionContext, a Assertion) error {
	author, permlink, err := splitComment(a.Comment)
	if err != nil {
		return err
	}
	c, ok := actx.Snapshot.Comment(author, permlink)
	if !ok {
		return &AssertionError{i, a.Type, "comment " + a.Comment, "not found"}
	}
	return matchExpect(i, a, c)
}

func assertAccount(i int, actx *AssertionContext, a Assertion) error {
	acc, ok := actx.Snapshot.Account(a.Account)
	if !ok {
		return &AssertionError{i, a.Type, "account " + a.Account, "not found"}
	}
	return matchExpect(i, a, acc)
}

// matchExpect compares the JSON form of actual with a.Expect. Keys absent
// from Expect are ignored.
func matchExpect(i int, a Assertion, actual any) error {
	got, err := normalize(actual)
	if err != nil {
		return fmt.Errorf("assertion[%d]: %w", i, err)
	}
	gotMap, ok := got.(map[string]any)
	if !ok {
		return fmt.Errorf("assertion[%d]: %T is not an object", i, actual)
	}
	want, err := normalize(a.Expect)
	if err != nil {
		return fmt.Errorf("assertion[%d]: expect: %w", i, err)
	}

	var mismatches []string
	wantMap := want.(map[string]any)
	keys := make([]string, 0, len(wantMap))
	for k := range wantMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, exists := gotMap[k]
		switch {
		case !exists:
			mismatches = append(mismatches, fmt.Sprintf("%s: missing", k))
		case !reflect.DeepEqual(v, wantMap[k]):
			mismatches = append(mismatches, fmt.Sprintf("%s: want %v, got %v", k, wantMap[k], v))
		}
	}
	if len(mismatches) > 0 {
		return &AssertionError{i, a.Type, fmt.Sprintf("%v", a.Expect), strings.Join(mismatches, "; ")}
	}
	return nil
}

// normalize round-trips v through JSON so YAML ints and Go int64s compare
// as the same float64.
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
