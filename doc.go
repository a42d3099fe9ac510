// Copyright (c) 2024, The Popnet Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package popnet is the overall repository for the popnet population data model:
a uniform logical addressing scheme over groups of simulated cells that may be
distributed across multiple cooperating compute nodes running in lock-step.

This top-level of the repository has no functional code -- everything is
organized into the following sub-packages:

* pop: the core Population, PopulationView and Assembly containers, which
mediate all parameter access, state initialization, spatial placement and
per-node locality.  Views alias a parent's storage without copying; assemblies
are ordered, de-duplicated unions of populations and views of potentially
different cell types.

* lazy: deferred-evaluation parameter arrays (scalar, explicit sequence,
seeded random distribution, or index function) and the ParamSpace mapping that
shapes, validates and translates them, with a draw order that is independent
of the number of compute nodes.

* cells: cell-type capability descriptors -- parameter schemas with defaults,
units and native-name translation, recordable variable sets, and the
conductance/current and injectability nature of a type.

* space: spatial structure generators satisfying the point-generation
contract (a 3 x N coordinate table for N cells).

* nodes: compute-node (rank) state, the cell locality policy, and the
cross-node gather boundary.

* record: the recording collaborator contract and an in-memory recorder that
stores samples in etable Tables, keyed by variable and cell.

* examples: runnable programs demonstrating the library.
*/
package popnet
