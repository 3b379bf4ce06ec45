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

package abundance

import (
	"errors"
	"fmt"
)

// Input validation errors. They are fatal: no partial result is returned.
var (
	// ErrUnassignedCell indicates that a cell does not belong to any unit.
	ErrUnassignedCell = errors.New("cell is not assigned to a unit")

	// ErrEmptyUnit indicates that a unit has no member cells.
	ErrEmptyUnit = errors.New("unit has no member cells")

	// ErrUnknownUnit indicates that a cell refers to a unit id outside of
	// the partition's key domain.
	ErrUnknownUnit = errors.New("unit id is outside of the partition key domain")

	// ErrDuplicateUnit indicates that a unit key was declared more than once.
	ErrDuplicateUnit = errors.New("unit key is declared more than once")
)

// Precondition errors raised during aggregation.
var (
	// ErrMalformedRange indicates a unit range with min > max or a range
	// that falls outside of the aggregated data.
	ErrMalformedRange = errors.New("malformed unit range")

	// ErrZeroRate indicates that the rates in a unit range sum to zero, so
	// the log of the unit rate is undefined.
	ErrZeroRate = errors.New("unit rate sums to zero")

	// ErrInvalidRate indicates that the rates in a unit range sum to a
	// negative or NaN value.
	ErrInvalidRate = errors.New("unit rate is negative or not a number")

	// ErrNoRates indicates that unit rates were requested from a table
	// aggregated from a grid without cell rates.
	ErrNoRates = errors.New("unit table has no rates")
)

// UnitError records an error associated with a single unit.
type UnitError struct {
	Unit int    // 1-based unit id
	Key  string // unit key, if known
	Err  error
}

func (e *UnitError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("abundance: unit %d (%s): %v", e.Unit, e.Key, e.Err)
	}
	return fmt.Sprintf("abundance: unit %d: %v", e.Unit, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }
