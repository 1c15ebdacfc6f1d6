// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package params

import "strings"

// Instantiate replaces every [NAME] placeholder with its extracted value.
//
// Description:
//
//	Substitution matches the full bracketed token, never the bare name,
//	so a parameter whose name is a prefix of another ([CITY] vs
//	[CITYZONE]) can never corrupt the longer token. Placeholders with no
//	entry in values are left as literal [NAME] text in the output: an
//	unbound placeholder is an observable output state, not an error.
//
// Inputs:
//
//	queryText - Template text containing zero or more [NAME] tokens.
//	values - Extracted parameter values keyed by name.
//
// Outputs:
//
//	string - The resolved query text.
//
// Thread Safety: Pure function.
func Instantiate(queryText string, values map[string]string) string {
	resolved := queryText
	for name, value := range values {
		resolved = strings.ReplaceAll(resolved, "["+name+"]", value)
	}
	return resolved
}
