// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pop

import "errors"

// The error taxonomy: addressing errors (ErrIDRange, ErrNotPresent,
// ErrDuplicateID) and locality errors (ErrNotLocal) are always surfaced to
// the caller and never silently coerced.  Schema errors wrap
// cells.ErrNoSuchParameter.  Construction problems that can be corrected
// (duplicate ids in a view mask, unsorted mask data) are logged as warnings
// and the operation proceeds with the corrected data.
var (
	// ErrIDRange is wrapped by identifier-out-of-range addressing errors.
	ErrIDRange = errors.New("identifier out of range")

	// ErrNotPresent is wrapped by errors where an identifier or index is
	// not contained in a view or assembly.
	ErrNotPresent = errors.New("not present")

	// ErrDuplicateID is wrapped by errors where an identifier occurs more
	// than once where it must be unique.
	ErrDuplicateID = errors.New("duplicate identifier")

	// ErrNotLocal is wrapped by errors where an operation requiring local
	// presence is invoked for a cell resident on another node.
	ErrNotLocal = errors.New("cell is not local to this node")

	// ErrViewInitialValues reports that masked initial-value access
	// through a view is not implemented.
	ErrViewInitialValues = errors.New("initial values cannot be accessed through a view")
)
