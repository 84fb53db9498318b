// Package wire translates the fixed XML request grammar into a typed request
// algebra and renders typed results back to XML. Attribute values are kept as
// the raw strings the client sent so replies round-trip them verbatim.
package wire

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

var ErrInvalidXML = errors.New("Invalid XML")

// Request is either a *CreateRequest or a *TransactionsRequest.
type Request interface {
	isRequest()
}

// CreateRequest is a <create> bundle. Children keep their input order.
type CreateRequest struct {
	Children []CreateChild
}

func (*CreateRequest) isRequest() {}

// CreateChild is either *AccountCreate or *SymbolCreate.
type CreateChild interface {
	isCreateChild()
}

// AccountCreate is <account id="..." balance="..."/>.
type AccountCreate struct {
	ID      string
	Balance string
}

func (*AccountCreate) isCreateChild() {}

// SymbolCreate is <symbol sym="..."> with nested account grants.
type SymbolCreate struct {
	Sym    string
	Grants []SymbolGrant
}

func (*SymbolCreate) isCreateChild() {}

// SymbolGrant is <account id="...">AMOUNT</account> inside <symbol>.
type SymbolGrant struct {
	AccountID string
	Amount    string
}

// TransactionsRequest is a <transactions id="..."> bundle scoped to one
// account. Children keep their input order; replies appear in the same order.
type TransactionsRequest struct {
	AccountID string
	Children  []TxChild
}

func (*TransactionsRequest) isRequest() {}

// TxChild is one of *OrderRequest, *QueryRequest, *CancelRequest.
type TxChild interface {
	isTxChild()
}

// OrderRequest is <order sym amount limit/>. Positive amount buys.
type OrderRequest struct {
	Sym    string
	Amount string
	Limit  string
}

func (*OrderRequest) isTxChild() {}

// QueryRequest is <query id="..."/>.
type QueryRequest struct {
	ID string
}

func (*QueryRequest) isTxChild() {}

// CancelRequest is <cancel id="..."/>.
type CancelRequest struct {
	ID string
}

func (*CancelRequest) isTxChild() {}

func attr(start xml.StartElement, name string) string {
	for _, a := range start.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// Parse decodes one request document into the typed algebra. Anything that
// does not fit the grammar is ErrInvalidXML.
func Parse(data []byte) (Request, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	root, err := nextStart(dec)
	if err != nil {
		return nil, ErrInvalidXML
	}

	switch root.Name.Local {
	case "create":
		return parseCreate(dec)
	case "transactions":
		return parseTransactions(dec, root)
	default:
		return nil, ErrInvalidXML
	}
}

func nextStart(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}

func parseCreate(dec *xml.Decoder) (*CreateRequest, error) {
	req := &CreateRequest{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return req, nil
		}
		if err != nil {
			return nil, ErrInvalidXML
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "account":
				req.Children = append(req.Children, &AccountCreate{
					ID:      attr(t, "id"),
					Balance: attr(t, "balance"),
				})
				if err := dec.Skip(); err != nil {
					return nil, ErrInvalidXML
				}
			case "symbol":
				sym, err := parseSymbol(dec, t)
				if err != nil {
					return nil, err
				}
				req.Children = append(req.Children, sym)
			default:
				return nil, ErrInvalidXML
			}
		case xml.EndElement:
			if t.Name.Local == "create" {
				return req, nil
			}
		}
	}
}

func parseSymbol(dec *xml.Decoder, start xml.StartElement) (*SymbolCreate, error) {
	sym := &SymbolCreate{Sym: attr(start, "sym")}

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, ErrInvalidXML
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "account" {
				return nil, ErrInvalidXML
			}
			grant := SymbolGrant{AccountID: attr(t, "id")}
			var body struct {
				Text string `xml:",chardata"`
			}
			if err := dec.DecodeElement(&body, &t); err != nil {
				return nil, ErrInvalidXML
			}
			grant.Amount = strings.TrimSpace(body.Text)
			sym.Grants = append(sym.Grants, grant)
		case xml.EndElement:
			if t.Name.Local == "symbol" {
				return sym, nil
			}
		}
	}
}

func parseTransactions(dec *xml.Decoder, root xml.StartElement) (*TransactionsRequest, error) {
	req := &TransactionsRequest{AccountID: attr(root, "id")}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return req, nil
		}
		if err != nil {
			return nil, ErrInvalidXML
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "order":
				req.Children = append(req.Children, &OrderRequest{
					Sym:    attr(t, "sym"),
					Amount: attr(t, "amount"),
					Limit:  attr(t, "limit"),
				})
			case "query":
				req.Children = append(req.Children, &QueryRequest{ID: attr(t, "id")})
			case "cancel":
				req.Children = append(req.Children, &CancelRequest{ID: attr(t, "id")})
			default:
				return nil, ErrInvalidXML
			}
			if err := dec.Skip(); err != nil {
				return nil, ErrInvalidXML
			}
		case xml.EndElement:
			if t.Name.Local == "transactions" {
				return req, nil
			}
		}
	}
}
