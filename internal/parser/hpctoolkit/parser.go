// Package hpctoolkit reads HPCToolkit experiment.xml profiling databases.
package hpctoolkit

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/hpc-analysis/internal/parser"
	apperrors "github.com/hpc-analysis/pkg/errors"
	"github.com/hpc-analysis/pkg/model"
)

// FormatExperimentXML is the format name of experiment.xml databases.
const FormatExperimentXML = "hpctoolkit-xml"

type xmlExperiment struct {
	XMLName xml.Name    `xml:"HPCToolkitExperiment"`
	Profile *xmlProfile `xml:"SecCallPathProfile"`
}

type xmlProfile struct {
	Name   string     `xml:"n,attr"`
	Header *xmlHeader `xml:"SecHeader"`
	Data   *element   `xml:"SecCallPathProfileData"`
}

type xmlHeader struct {
	Metrics    []xmlMetric `xml:"MetricTable>Metric"`
	Modules    []xmlEntry  `xml:"LoadModuleTable>LoadModule"`
	Files      []xmlEntry  `xml:"FileTable>File"`
	Procedures []xmlEntry  `xml:"ProcedureTable>Procedure"`
}

type xmlMetric struct {
	ID       string       `xml:"i,attr"`
	Name     string       `xml:"n,attr"`
	Formulas []xmlFormula `xml:"MetricFormula"`
}

type xmlFormula struct {
	Type string `xml:"t,attr"`
	Text string `xml:"frm,attr"`
}

type xmlEntry struct {
	ID   string `xml:"i,attr"`
	Name string `xml:"n,attr"`
}

// element decodes an arbitrary subtree into a model.Element.
type element model.Element

func (e *element) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	e.Tag = start.Name.Local
	e.Attrs = make(map[string]string, len(start.Attr))
	for _, a := range start.Attr {
		e.Attrs[a.Name.Local] = a.Value
	}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child := &element{}
			if err := child.UnmarshalXML(d, t); err != nil {
				return err
			}
			e.Children = append(e.Children, (*model.Element)(child))
		case xml.EndElement:
			return nil
		}
	}
}

// Parser implements parser.Parser for experiment.xml.
type Parser struct{}

// NewParser creates a new experiment.xml parser.
func NewParser() *Parser {
	return &Parser{}
}

// Name returns the name of this parser.
func (p *Parser) Name() string {
	return "hpctoolkit"
}

// SupportedFormats returns the formats supported by this parser.
func (p *Parser) SupportedFormats() []string {
	return []string{FormatExperimentXML}
}

// Parse reads an experiment.xml document.
func (p *Parser) Parse(ctx context.Context, reader io.Reader) (*model.Experiment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc xmlExperiment
	decoder := xml.NewDecoder(reader)
	decoder.Strict = false
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, parser.ErrEmptyInput
		}
		return nil, fmt.Errorf("%w: %v", parser.ErrInvalidFormat, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if doc.Profile == nil {
		return nil, fmt.Errorf("%w: SecCallPathProfile", parser.ErrMissingSection)
	}
	if doc.Profile.Header == nil {
		return nil, fmt.Errorf("%w: SecHeader", parser.ErrMissingSection)
	}
	if doc.Profile.Data == nil {
		return nil, fmt.Errorf("%w: SecCallPathProfileData", parser.ErrMissingSection)
	}

	return convert(doc.Profile)
}

func convert(profile *xmlProfile) (*model.Experiment, error) {
	exp := &model.Experiment{
		Name: profile.Name,
		Data: (*model.Element)(profile.Data),
	}

	for _, m := range profile.Header.Metrics {
		id, err := parseID("Metric", m.ID, m.Name)
		if err != nil {
			return nil, err
		}
		def := model.MetricDef{ID: id, Name: m.Name}
		for _, f := range m.Formulas {
			def.Formulas = append(def.Formulas, model.MetricFormula{Type: f.Type, Text: f.Text})
		}
		exp.Metrics = append(exp.Metrics, def)
	}

	var err error
	if exp.Modules, err = convertEntries("LoadModule", profile.Header.Modules); err != nil {
		return nil, err
	}
	if exp.Files, err = convertEntries("File", profile.Header.Files); err != nil {
		return nil, err
	}
	if exp.Procedures, err = convertEntries("Procedure", profile.Header.Procedures); err != nil {
		return nil, err
	}

	return exp, nil
}

func convertEntries(tag string, entries []xmlEntry) ([]model.Entry, error) {
	result := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		id, err := parseID(tag, e.ID, e.Name)
		if err != nil {
			return nil, err
		}
		result = append(result, model.Entry{ID: id, Name: e.Name})
	}
	return result, nil
}

func parseID(tag, raw, name string) (int, error) {
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &apperrors.MalformedInputError{
			Reason: "invalid table id",
			Tag:    tag,
			Attrs:  map[string]string{"i": raw, "n": name},
		}
	}
	return id, nil
}
