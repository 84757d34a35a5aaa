// Cruise Control - Music Discovery and Acquisition Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cruisecontrol

package filter

import "strings"

// keywordMatcher is an Aho-Corasick automaton over lower-cased keywords.
// It finds whether any keyword occurs in a text in O(len(text)) regardless
// of how many keywords are configured.
//
// The automaton is immutable once built and safe for concurrent use.
type keywordMatcher struct {
	root     *acNode
	keywords []string
}

type acNode struct {
	children map[rune]*acNode
	failure  *acNode // longest proper suffix that is also a trie prefix
	output   []int   // indices of keywords ending here
}

func newACNode() *acNode {
	return &acNode{children: make(map[rune]*acNode)}
}

// newKeywordMatcher builds the automaton. Empty keywords are ignored.
func newKeywordMatcher(keywords []string) *keywordMatcher {
	m := &keywordMatcher{root: newACNode()}
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		m.insert(len(m.keywords), kw)
		m.keywords = append(m.keywords, kw)
	}
	m.buildFailureLinks()
	return m
}

func (m *keywordMatcher) insert(index int, keyword string) {
	node := m.root
	for _, ch := range keyword {
		next := node.children[ch]
		if next == nil {
			next = newACNode()
			node.children[ch] = next
		}
		node = next
	}
	node.output = append(node.output, index)
}

// buildFailureLinks wires failure links breadth-first.
func (m *keywordMatcher) buildFailureLinks() {
	queue := make([]*acNode, 0, len(m.root.children))
	for _, child := range m.root.children {
		child.failure = m.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for ch, child := range current.children {
			queue = append(queue, child)

			fail := current.failure
			for fail != nil && fail.children[ch] == nil {
				fail = fail.failure
			}
			if fail == nil {
				child.failure = m.root
				continue
			}
			child.failure = fail.children[ch]
			child.output = append(child.output, child.failure.output...)
		}
	}
}

// first returns the first keyword found in text, case-insensitively.
func (m *keywordMatcher) first(text string) (string, bool) {
	if len(m.keywords) == 0 {
		return "", false
	}

	node := m.root
	for _, ch := range strings.ToLower(text) {
		for node != nil && node.children[ch] == nil {
			node = node.failure
		}
		if node == nil {
			node = m.root
			continue
		}
		node = node.children[ch]
		if len(node.output) > 0 {
			return m.keywords[node.output[0]], true
		}
	}
	return "", false
}

func (m *keywordMatcher) size() int {
	return len(m.keywords)
}
