package wire

import (
	"bytes"
	"encoding/xml"
	"strconv"

	"exchange-core/src/registry"
)

// ResultWriter accumulates the children of one <results> reply in request
// order.
type ResultWriter struct {
	buf bytes.Buffer
}

func NewResultWriter() *ResultWriter {
	w := &ResultWriter{}
	w.buf.WriteString("<results>")
	return w
}

// Bytes closes the document and returns it.
func (w *ResultWriter) Bytes() []byte {
	w.buf.WriteString("</results>")
	return w.buf.Bytes()
}

func (w *ResultWriter) writeAttr(name, value string) {
	w.buf.WriteByte(' ')
	w.buf.WriteString(name)
	w.buf.WriteString(`="`)
	_ = xml.EscapeText(&w.buf, []byte(value))
	w.buf.WriteByte('"')
}

func (w *ResultWriter) writeText(text string) {
	_ = xml.EscapeText(&w.buf, []byte(text))
}

// Attr is one echoed attribute on a result child.
type Attr struct {
	Name  string
	Value string
}

// CreatedAccount renders <created id="..."/>.
func (w *ResultWriter) CreatedAccount(id string) {
	w.buf.WriteString("<created")
	w.writeAttr("id", id)
	w.buf.WriteString("/>")
}

// CreatedSymbol renders <created sym="..." id="..."/>.
func (w *ResultWriter) CreatedSymbol(sym, id string) {
	w.buf.WriteString("<created")
	w.writeAttr("sym", sym)
	w.writeAttr("id", id)
	w.buf.WriteString("/>")
}

// Error renders <error ...attrs>message</error> with the same attributes the
// child would have carried on success.
func (w *ResultWriter) Error(attrs []Attr, message string) {
	w.buf.WriteString("<error")
	for _, a := range attrs {
		w.writeAttr(a.Name, a.Value)
	}
	w.buf.WriteString(">")
	w.writeText(message)
	w.buf.WriteString("</error>")
}

// Opened renders <opened sym amount limit id/> echoing the raw request
// attributes plus the assigned id.
func (w *ResultWriter) Opened(sym, amount, limit string, id int64) {
	w.buf.WriteString("<opened")
	w.writeAttr("sym", sym)
	w.writeAttr("amount", amount)
	w.writeAttr("limit", limit)
	w.writeAttr("id", strconv.FormatInt(id, 10))
	w.buf.WriteString("/>")
}

// Status renders <status id="...">...</status> for a query reply.
func (w *ResultWriter) Status(id string, st registry.Status) {
	w.buf.WriteString("<status")
	w.writeAttr("id", id)
	w.buf.WriteString(">")
	w.statusChildren(st)
	w.buf.WriteString("</status>")
}

// Canceled renders <canceled id="...">...</canceled> for a cancel reply.
func (w *ResultWriter) Canceled(id string, st registry.Status) {
	w.buf.WriteString("<canceled")
	w.writeAttr("id", id)
	w.buf.WriteString(">")
	w.statusChildren(st)
	w.buf.WriteString("</canceled>")
}

// statusChildren renders at most one <open>, at most one <canceled>, and the
// executed fills in the order they were applied.
func (w *ResultWriter) statusChildren(st registry.Status) {
	if st.Open.Sign() > 0 && st.Cancel == nil {
		w.buf.WriteString("<open")
		w.writeAttr("shares", st.Open.String())
		w.buf.WriteString("/>")
	}

	if st.Cancel != nil {
		w.buf.WriteString("<canceled")
		w.writeAttr("shares", st.Cancel.Shares.String())
		w.writeAttr("time", strconv.FormatInt(st.Cancel.Time, 10))
		w.buf.WriteString("/>")
	}

	for _, fill := range st.Fills {
		w.buf.WriteString("<executed")
		w.writeAttr("shares", fill.Shares.String())
		w.writeAttr("price", fill.Price.String())
		w.writeAttr("time", strconv.FormatInt(fill.Time, 10))
		w.buf.WriteString("/>")
	}
}

// TopLevelError renders a whole-request failure, mirroring the reply for an
// unparseable document.
func TopLevelError(message string) []byte {
	var buf bytes.Buffer
	buf.WriteString("<results><error>")
	_ = xml.EscapeText(&buf, []byte(message))
	buf.WriteString("</error></results>")
	return buf.Bytes()
}
