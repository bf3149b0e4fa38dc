// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package queryservice

import (
	"sort"
	"strconv"
	"strings"

	"github.com/kraklabs/mnemo/pkg/graphstore"
)

func itoa(n int) string {
	return strconv.Itoa(n)
}

// anyToInt converts a CozoDB query result cell (typically int64 or
// float64 for count() aggregates) to an int.
func anyToInt(v any) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	default:
		return 0
	}
}

// joinRelTypesRaw builds a deterministic, order-independent cache-key
// fragment from a relationship type filter.
func joinRelTypesRaw(relTypes []graphstore.RelType) string {
	if len(relTypes) == 0 {
		return "*"
	}
	names := make([]string, len(relTypes))
	for i, rt := range relTypes {
		names[i] = string(rt)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
