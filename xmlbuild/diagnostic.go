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

package xmlbuild

import (
	"encoding/base64"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// DecoderModule is loaded by core:require to decode the base64 payloads at runtime.
const DecoderModule = "sap/base/util/Base64"

// Diagnostic is rendered in place of a building block that failed.
type Diagnostic struct {
	Messages  []string
	Caller    string
	TraceInfo interface{}
	Stack     string
}

// Render returns the diagnostic as an XML fragment.
// Payloads are base64 encoded so they cannot break the surrounding document.
func (D Diagnostic) Render() string {
	var buf strings.Builder
	buf.WriteString(`<m:VBox xmlns:m="sap.m" xmlns:core="sap.ui.core" xmlns:code="sap.ui.codeeditor" xmlns:grid="sap.ui.layout"`)
	buf.WriteString(` core:require="{BBDecode: '` + DecoderModule + `'}">`)
	buf.WriteString("\n<grid:Grid defaultSpan=\"XL12 L12 M12 S12\">")
	for _, msg := range D.Messages {
		buf.WriteString("\n<m:Label text=\"" + EscapeAttr(msg) + "\" wrapping=\"true\" design=\"Bold\"/>")
	}
	if D.Stack != "" {
		writePanel(&buf, "Stack", "text", D.Stack)
	}
	if D.TraceInfo != nil {
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(D.TraceInfo, "", "  ")
		if err != nil {
			b = []byte(`{"error": "` + strings.ReplaceAll(err.Error(), `"`, `'`) + `"}`)
		}
		writePanel(&buf, "Trace Info", "json", string(b))
	}
	if D.Caller != "" {
		writePanel(&buf, "How the building block was called", "xml", D.Caller)
	}
	buf.WriteString("\n</grid:Grid>\n</m:VBox>")
	return buf.String()
}

func writePanel(buf *strings.Builder, label, typ, content string) {
	buf.WriteString("\n<m:Label text=\"" + EscapeAttr(label) + "\"/>")
	buf.WriteString("\n<code:CodeEditor type=\"" + typ + "\" editable=\"false\" height=\"auto\" lineNumbers=\"false\" value=\"{= BBDecode.decode('")
	buf.WriteString(base64.StdEncoding.EncodeToString([]byte(content)))
	buf.WriteString("')}\"/>")
}

// DecodePanel extracts the payload of a CodeEditor value written by Render.
func DecodePanel(value string) (string, bool) {
	const prefix, suffix = "{= BBDecode.decode('", "')}"
	if !strings.HasPrefix(value, prefix) || !strings.HasSuffix(value, suffix) {
		return "", false
	}
	b, err := base64.StdEncoding.DecodeString(value[len(prefix) : len(value)-len(suffix)])
	if err != nil {
		return "", false
	}
	return string(b), true
}
