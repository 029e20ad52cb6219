// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy of
// the License at
//
//  http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations under
// the License.


package output

import (
	"strconv"
	"strings"

	"github.com/icza/dyno"

	"github.com/go-kivik/minicouch/cmd/minicouch/errors"
)

// Extract returns the element of v at the dotted path field. Path elements
// index into arrays when numeric, and objects otherwise. An empty field
// returns v.
func Extract(v interface{}, field string) (interface{}, error) {
	if field == "" {
		return v, nil
	}
	for _, name := range strings.Split(field, ".") {
		var elem interface{} = name
		if _, isArray := v.([]interface{}); isArray {
			idx, err := strconv.Atoi(name)
			if err != nil {
				return nil, errors.Codef(errors.ErrData, "field %q: %q is not an array index", field, name)
			}
			elem = idx
		}
		var err error
		v, err = dyno.Get(v, elem)
		if err != nil {
			return nil, errors.Codef(errors.ErrData, "field %q: %s", field, err)
		}
	}
	return v, nil
}
