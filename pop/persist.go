// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pop

import (
	"bufio"
	"fmt"
	"os"

	"github.com/emer/etable/etensor"
)

// savePositions writes one (index, x, y, z) row per cell to the named
// file, preceded by a header line identifying the owning group.  idxs and
// pos must agree in length: pos is a 3 x len(idxs) coordinate table.
func savePositions(filename, kind, label string, idxs []int, pos *etensor.Float32) error {
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	w := bufio.NewWriter(fp)
	defer w.Flush()
	if _, err := fmt.Fprintf(w, "# %s = %s\n", kind, label); err != nil {
		return err
	}
	n := len(idxs)
	for i, gi := range idxs {
		_, err := fmt.Fprintf(w, "%d\t%g\t%g\t%g\n", gi,
			pos.Values[i], pos.Values[n+i], pos.Values[2*n+i])
		if err != nil {
			return err
		}
	}
	return nil
}
