/*
Copyright © 2026 the abundance authors.
This file is part of abundance.

abundance is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

abundance is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with abundance.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package hash computes fingerprints of derived data tables so that repeated
// runs on identical input can be checked for identical output.
package hash

import (
	"encoding/gob"
	"fmt"
	"hash/fnv"

	"github.com/davecgh/go-spew/spew"
)

// Fingerprint returns a hex key for the given parts. Parts are gob-encoded
// in order; if any part cannot be gob-encoded (for example because it
// contains NaN values inside an interface) all parts are printed with spew
// instead.
func Fingerprint(parts ...interface{}) string {
	h := fnv.New128a()
	e := gob.NewEncoder(h)
	ok := true
	for _, p := range parts {
		if err := e.Encode(p); err != nil {
			ok = false
			break
		}
	}
	if !ok {
		h.Reset()
		printer := spew.ConfigState{
			Indent:                  " ",
			SortKeys:                true,
			DisableMethods:          true,
			SpewKeys:                true,
			DisablePointerAddresses: true,
			DisableCapacities:       true,
		}
		for _, p := range parts {
			printer.Fprintf(h, "%#v\n", p)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
