// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package record

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
)

// WriteTable writes one variable's table as whitespace-separated text with
// a comment header carrying the metadata pairs, in sorted key order.
func writeTable(w io.Writer, bk *Block, variable string, meta map[string]string) error {
	dt := bk.Tables[variable]
	bw := bufio.NewWriter(w)
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(bw, "# %s = %s\n", k, meta[k])
	}
	ncol := len(dt.Cols)
	for row := 0; row < dt.Rows; row++ {
		for col := 0; col < ncol; col++ {
			if col > 0 {
				fmt.Fprint(bw, "\t")
			}
			fmt.Fprintf(bw, "%g", dt.Cols[col].FloatVal1D(row))
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// WriteBlock writes the block's variables to text files named
// filename.<variable>, each with the given metadata pairs plus the
// variable name in the comment header.
func WriteBlock(filename string, bk *Block, meta map[string]string) error {
	for _, v := range bk.Variables() {
		fnm := fmt.Sprintf("%s.%s", filename, v)
		fp, err := os.Create(fnm)
		if err != nil {
			log.Println(err)
			return err
		}
		m := map[string]string{"variable": v}
		for k, mv := range meta {
			m[k] = mv
		}
		werr := writeTable(fp, bk, v, m)
		cerr := fp.Close()
		if werr != nil {
			return werr
		}
		if cerr != nil {
			return cerr
		}
	}
	return nil
}

// Write writes the recorded data for the given variables (nil = all) to
// text files named filename.<variable>.  With gather, only the coordinator
// writes; without, every node writes its own data with a .<rank> suffix.
// Returns ErrNothingToWrite if none of the variables have been recorded.
func (rc *Recorder) Write(filename string, variables []string, gather bool, filter []int, clear bool) error {
	bk, err := rc.Get(variables, filter, clear)
	if err != nil {
		return err
	}
	if gather && !rc.Node.Coordinator() {
		return nil
	}
	if !gather && rc.Node.NProcs > 1 {
		filename = fmt.Sprintf("%s.%d", filename, rc.Node.Rank)
	}
	for _, v := range bk.Variables() {
		fnm := fmt.Sprintf("%s.%s", filename, v)
		fp, err := os.Create(fnm)
		if err != nil {
			log.Println(err)
			return err
		}
		meta := map[string]string{"population": rc.Label, "variable": v}
		werr := writeTable(fp, bk, v, meta)
		cerr := fp.Close()
		if werr != nil {
			return werr
		}
		if cerr != nil {
			return cerr
		}
	}
	return nil
}
