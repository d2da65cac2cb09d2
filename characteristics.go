// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"fmt"
	"strings"
)

// attribute is one key/value pair of a sample's phenotype.
type attribute struct {
	Key   string
	Value string
}

// A characteristic is a node of a sample's Characteristics data: a
// bare string, a tagged value, or a list of either.
type characteristic interface {
	// attributes returns the key/value pairs for this node, given
	// its 1-based position in the enclosing list.
	attributes(pos int) []attribute
}

// bareString is a characteristic with no tag. Its key is derived
// from its position: "c1", "c2", ...
type bareString string

func (s bareString) attributes(pos int) []attribute {
	return []attribute{{Key: fmt.Sprintf("c%d", pos), Value: attrValue(string(s))}}
}

type tagValue struct {
	Tag  string
	Text string
}

func (tv tagValue) attributes(int) []attribute {
	return []attribute{{Key: attrKey(tv.Tag), Value: attrValue(tv.Text)}}
}

// characteristicList numbers its elements from 1, regardless of its
// own position.
type characteristicList []characteristic

func (l characteristicList) attributes(int) []attribute {
	var attrs []attribute
	for i, c := range l {
		attrs = append(attrs, c.attributes(i+1)...)
	}
	return attrs
}

func attrKey(tag string) string {
	return strings.ReplaceAll(tag, " ", "_")
}

var attrValueReplacer = strings.NewReplacer("\r", " ", "\n", " ")

func attrValue(text string) string {
	return attrValueReplacer.Replace(strings.TrimSpace(text))
}

// channelCharacteristics converts a channel's <Characteristics>
// elements. An element with a blank tag attribute is treated as a
// bare string.
func channelCharacteristics(ch minimlChannel) characteristicList {
	list := make(characteristicList, 0, len(ch.Characteristics))
	for _, elt := range ch.Characteristics {
		if elt.Tag != nil && strings.TrimSpace(*elt.Tag) != "" {
			list = append(list, tagValue{Tag: *elt.Tag, Text: elt.Text})
		} else {
			list = append(list, bareString(elt.Text))
		}
	}
	return list
}
