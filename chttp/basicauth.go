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

package chttp

import "encoding/base64"

// basicAuth holds the credentials extracted from the DSN.
type basicAuth struct {
	Username string
	Password string
}

func (a *basicAuth) header() string {
	return BasicAuthHeader(a.Username, a.Password)
}

// BasicAuthHeader returns the value of an Authorization header carrying the
// given HTTP Basic Auth credentials.
func BasicAuthHeader(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
