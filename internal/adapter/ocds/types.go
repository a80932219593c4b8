package ocds

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// release is the subset of an OCDS release that is stored.
type release struct {
	OCID             string           `json:"ocid"`
	ID               flexString       `json:"id"`
	Date             string           `json:"date"`
	Tag              []string         `json:"tag"`
	InitiationType   string           `json:"initiationType"`
	Language         string           `json:"language"`
	Tender           tender           `json:"tender"`
	Parties          []party          `json:"parties"`
	Bids             bidList          `json:"bids"`
	Awards           []award          `json:"awards"`
	Contracts        []contract       `json:"contracts"`
	RelatedProcesses []relatedProcess `json:"relatedProcesses"`
}

type tender struct {
	ID                              flexString  `json:"id"`
	Title                           string      `json:"title"`
	Status                          string      `json:"status"`
	ProcurementMethod               string      `json:"procurementMethod"`
	ProcurementMethodDetails        string      `json:"procurementMethodDetails"`
	ProcurementMethodRationale      string      `json:"procurementMethodRationale"`
	MainProcurementCategory         string      `json:"mainProcurementCategory"`
	AdditionalProcurementCategories []string    `json:"additionalProcurementCategories"`
	ProcuringEntity                 reference   `json:"procuringEntity"`
	TenderPeriod                    period      `json:"tenderPeriod"`
	NumberOfTenderers               *int        `json:"numberOfTenderers"`
	Tenderers                       []reference `json:"tenderers"`
	Documents                       []document  `json:"documents"`
	Items                           []item      `json:"items"`
	Lots                            []lot       `json:"lots"`
}

type period struct {
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	DurationInDays *int   `json:"durationInDays"`
	// DurationInDay is the misspelling found in some publisher exports.
	DurationInDay *int `json:"durationInDay"`
}

func (p period) duration() *int {
	if p.DurationInDays != nil {
		return p.DurationInDays
	}
	return p.DurationInDay
}

type reference struct {
	ID   flexString `json:"id"`
	Name string     `json:"name"`
}

type document struct {
	URL string `json:"url"`
}

type item struct {
	ID                        flexString       `json:"id"`
	Description               string           `json:"description"`
	Classification            classification   `json:"classification"`
	AdditionalClassifications []classification `json:"additionalClassifications"`
}

type classification struct {
	Scheme      string     `json:"scheme"`
	ID          flexString `json:"id"`
	Description string     `json:"description"`
}

type lot struct {
	ID             flexString `json:"id"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	ContractPeriod period     `json:"contractPeriod"`
}

type party struct {
	ID      flexString      `json:"id"`
	Name    string          `json:"name"`
	Roles   []string        `json:"roles"`
	Address address         `json:"address"`
	Details json.RawMessage `json:"details"`
}

type address struct {
	StreetAddress string `json:"streetAddress"`
	Locality      string `json:"locality"`
	Region        string `json:"region"`
	PostalCode    string `json:"postalCode"`
	CountryName   string `json:"countryName"`
}

type bid struct {
	ID          flexString   `json:"id"`
	Tenderers   []reference  `json:"tenderers"`
	RelatedLots []flexString `json:"relatedLots"`
	Admissible  *bool        `json:"admissible"`
	Conform     *bool        `json:"conform"`
	Value       amount       `json:"value"`
	ValueUnit   string       `json:"valueUnit"`
}

// bidList accepts both a flat array of bids and the standard
// {"details": [...]} bids object.
type bidList []bid

func (b *bidList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var wrapped struct {
			Details []bid `json:"details"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return err
		}
		*b = wrapped.Details
		return nil
	}
	var list []bid
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*b = list
	return nil
}

type award struct {
	ID        flexString  `json:"id"`
	Status    string      `json:"status"`
	Date      string      `json:"date"`
	Value     value       `json:"value"`
	Suppliers []reference `json:"suppliers"`
}

type value struct {
	Amount      *float64 `json:"amount"`
	Currency    string   `json:"currency"`
	TotalAmount *float64 `json:"totalAmount"`
}

// amount is a bid value given either as a bare number or as a value
// object.
type amount struct {
	Amount   *float64
	Currency string
}

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		return nil
	case data[0] == '{':
		var v value
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		a.Amount, a.Currency = v.Amount, v.Currency
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return err
		}
		a.Amount = &f
		return nil
	}
}

type contract struct {
	ID             flexString  `json:"id"`
	AwardID        flexString  `json:"awardID"`
	Status         string      `json:"status"`
	Period         period      `json:"period"`
	Value          value       `json:"value"`
	DateSigned     string      `json:"dateSigned"`
	Amendments     []amendment `json:"amendments"`
	Implementation struct {
		Transactions []transaction `json:"transactions"`
	} `json:"implementation"`
}

type amendment struct {
	ID        flexString `json:"id"`
	Rationale string     `json:"rationale"`
	Date      string     `json:"date"`
}

type transaction struct {
	ID     flexString `json:"id"`
	Source string     `json:"source"`
	Date   string     `json:"date"`
	Value  value      `json:"value"`
}

type relatedProcess struct {
	ID           flexString `json:"id"`
	Identifier   string     `json:"identifier"`
	URI          string     `json:"uri"`
	Relationship []string   `json:"relationship"`
	Title        string     `json:"title"`
	Scheme       string     `json:"scheme"`
}

// flexString is an identifier published either as a string or a number.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(strings.TrimSpace(v))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		*s = flexString(strconv.FormatInt(i, 10))
		return nil
	}
	*s = flexString(n.String())
	return nil
}

func (s flexString) String() string { return string(s) }
