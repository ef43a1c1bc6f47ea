// Package protocol defines the wire-level vocabulary of the chain: operations,
// blocks, timestamps, assets and the 128-bit accumulator used for rshares².
//
// Operations travel as a two element JSON array, kind first:
//
//	["vote", {"voter": "alice", "author": "bob", "permlink": "hello", "weight": 10000}]
//
// The package has no dependencies on state; everything here is a plain value.
package protocol
