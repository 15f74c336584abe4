// Package export writes harvested researchers to JSON, CSV, and XLSX files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/fmatlas/lattes-harvester/internal/model"
)

// Format selects the output encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves a user-supplied format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", eris.Errorf("export: unknown format %q (want json, csv, or xlsx)", s)
}

// jsonDocument is the envelope for the JSON export.
type jsonDocument struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Researchers []model.Researcher `json:"researchers"`
}

// WriteFile exports researchers to path in the given format.
func WriteFile(path string, format Format, researchers []model.Researcher) error {
	switch format {
	case FormatXLSX:
		// tealeg writes files directly; no intermediate writer.
		return writeXLSX(path, researchers)
	case FormatJSON, FormatCSV:
		f, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "export: create %s", path)
		}
		defer f.Close()
		if format == FormatJSON {
			return WriteJSON(f, researchers)
		}
		return WriteCSV(f, researchers)
	}
	return eris.Errorf("export: unknown format %q", format)
}

// WriteJSON writes the full nested document, projects included.
func WriteJSON(w io.Writer, researchers []model.Researcher) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	doc := jsonDocument{GeneratedAt: time.Now().UTC(), Researchers: researchers}
	return eris.Wrap(enc.Encode(doc), "export: encode json")
}

// flatHeader is the column layout shared by the CSV and XLSX exports. One
// row per project; researchers without projects get a single bare row.
var flatHeader = []string{
	"external_id", "name", "institution", "area", "city", "state", "country",
	"profile_url", "search_terms", "last_profile_update",
	"project_title", "project_start", "project_end", "project_status",
	"project_description", "funding_sources", "coordinator", "team_members",
	"industry_cooperation", "concept_tags", "tool_tags", "formal_methods",
}

// WriteCSV writes one flattened row per researcher-project pair.
func WriteCSV(w io.Writer, researchers []model.Researcher) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(flatHeader); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, r := range researchers {
		for _, row := range flatten(r) {
			if err := cw.Write(row); err != nil {
				return eris.Wrapf(err, "export: write csv row for %s", r.ExternalID)
			}
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

func writeXLSX(path string, researchers []model.Researcher) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Researchers")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range flatHeader {
		header.AddCell().Value = col
	}
	for _, r := range researchers {
		for _, cells := range flatten(r) {
			row := sheet.AddRow()
			for _, v := range cells {
				row.AddCell().Value = v
			}
		}
	}
	return eris.Wrapf(f.Save(path), "export: save %s", path)
}

func flatten(r model.Researcher) [][]string {
	base := []string{
		r.ExternalID, r.Name, r.Institution, r.Area, r.City, r.State, r.Country,
		r.ProfileURL, strings.Join(r.SearchTerms, "; "), r.LastProfileUpdate,
	}
	if len(r.Projects) == 0 {
		row := make([]string, len(flatHeader))
		copy(row, base)
		return [][]string{row}
	}

	rows := make([][]string, 0, len(r.Projects))
	for _, p := range r.Projects {
		row := make([]string, 0, len(flatHeader))
		row = append(row, base...)
		row = append(row,
			p.Title, p.StartDate, p.EndDate, string(p.Status),
			p.Description, p.FundingSources, p.CoordinatorName, p.TeamMembers,
			p.IndustryCooperation, p.ConceptTags, p.ToolTags,
			boolString(p.FormalMethods),
		)
		rows = append(rows, row)
	}
	return rows
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
