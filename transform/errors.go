// Copyright 2019 Tamás Gulácsi
//
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package transform

import "github.com/pkg/errors"

// ErrMalformedOutput is the cause of errors about unparsable block output.
var ErrMalformedOutput = errors.New("malformed output")

// SchemaError is a violated building block signature.
type SchemaError struct {
	Tag  string
	Key  string
	Path string
	Msg  string
}

func (e *SchemaError) Error() string {
	s := e.Tag + ": " + e.Msg
	if e.Path != "" {
		s += " (" + e.Path + ")"
	}
	return s
}
