// Package harness runs tag indexing scenarios end to end.
//
// A scenario applies a sequence of blocks to a fresh database, runs named
// queries against the final snapshot and checks assertions. After the last
// block the harness recomputes every tag aggregate from scratch and fails
// the scenario if the maintained values drifted.
//
// # Scenario Format
//
//	name: promoted_post
//	description: "Promotion moves a post up the promoted listing"
//	config: |
//	  chain: cashout_window: 60
//	start: "2016-01-01T00:00:00"
//	blocks:
//	  - ops:
//	      - account_create: {new_account_name: alice, vesting_shares: 1000000, balance: "10.000 GBG"}
//	  - skip: 30
//	    ops:
//	      - comment: {parent_author: "", parent_permlink: go, author: alice, permlink: hello, title: Hi, body: text, json_metadata: ""}
//	  - ops:
//	      - vote: {voter: mallory, author: alice, permlink: hello, weight: 100}
//	    expect: VALIDATION_FAILED
//	  - pop: 1
//	queries:
//	  - name: created
//	    discussions: {sort: created, tag: go, limit: 10}
//	assertions:
//	  - type: order
//	    query: created
//	    order: [alice/hello]
//
// Each block gets the next block number and the head time plus three
// seconds, plus skip. An absolute time may be given instead. expect names
// the error code the block must fail with; the default is that it applies.
// A pop step reverts that many blocks instead of applying one.
//
// Timestamps are quoted strings so YAML does not read them as its own
// timestamp type.
//
// # Assertion Types
//
//   - head: the head block number equals block
//   - tag_stats: the aggregate of tag matches expect (subset)
//   - entry_tags: comment ("author/permlink") is indexed under exactly tags
//   - order: the named discussion query returned exactly order
//   - peer_stats: voter's record about peer matches expect (subset)
//   - comment: the ledger comment matches expect (subset)
//   - account: the ledger account matches expect (subset)
//
// # Golden Files
//
// Render turns a result into a stable text listing of blocks and query
// output. RunWithGolden compares it against testdata/golden/<name>.golden.
package harness
