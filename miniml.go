// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package geotable

import (
	"encoding/xml"
	"fmt"
	"io"

	"golang.org/x/net/html/charset"
)

// minimlSample is a <Sample> element of a GEO MINiML family file.
// Elements this tool does not use are not decoded.
type minimlSample struct {
	IID       string          `xml:"iid,attr"`
	Title     *string         `xml:"Title"`
	Accession *minimlText     `xml:"Accession"`
	Channels  []minimlChannel `xml:"Channel"`
}

type minimlText struct {
	Text     string `xml:",chardata"`
	Database string `xml:"database,attr"`
}

type minimlChannel struct {
	Position        string                 `xml:"position,attr"`
	Characteristics []minimlCharacteristic `xml:"Characteristics"`
}

type minimlCharacteristic struct {
	Tag  *string `xml:"tag,attr"`
	Text string  `xml:",chardata"`
}

// readMiniML calls fn for each <Sample> element in r, in document
// order. Each sample is decoded on its own, so memory use does not
// grow with the number of samples.
func readMiniML(r io.Reader, name string, fn func(*minimlSample) error) error {
	d := xml.NewDecoder(r)
	d.CharsetReader = charset.NewReaderLabel
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("%s: %w: %s", name, ErrInputRead, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "Sample" {
			continue
		}
		var sample minimlSample
		if err = d.DecodeElement(&sample, &start); err != nil {
			return fmt.Errorf("%s: %w: %s", name, ErrInputRead, err)
		}
		if err = fn(&sample); err != nil {
			return err
		}
	}
}
