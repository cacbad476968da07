// Package record holds the typed view of one spreadsheet row and the rules
// for its optional field groups.
package record

import (
	"strconv"
	"strings"
)

// Column names understood by the parser.
const (
	ColHandle       = "handle"
	ColEmail        = "email"
	ColFirstName    = "firstName"
	ColLastName     = "lastName"
	ColCountryName  = "countryName"
	ColProviderType = "providerType"
	ColProvider     = "provider"
	ColUserID       = "userId"

	ColSkillProviderName  = "skillProviderName"
	ColSkillName          = "skillName"
	ColSkillCertifierID   = "skillCertifierId"
	ColSkillCertifiedDate = "skillCertifiedDate"
	ColMetricValue        = "metricValue"

	ColAchievementsProviderName  = "achievementsProviderName"
	ColAchievementsCertifierID   = "achievementsCertifierId"
	ColAchievementsCertifiedDate = "achievementsCertifiedDate"
	ColAchievementsName          = "achievementsName"
	ColAchievementsURI           = "achievementsUri"

	attributeGroupNamePrefix = "attributeGroupName"
	attributeNamePrefix      = "attributeName"
	attributeValuePrefix     = "attributeValue"
)

// Row is one data line of an uploaded workbook.
type Row struct {
	// Line is the 1-based line number in the source sheet.
	Line int
	// Cells holds the non-empty cells keyed by column name.
	Cells map[string]string

	Handle       string
	Email        string
	FirstName    string
	LastName     string
	CountryName  string
	ProviderType string
	Provider     string
	UserID       string

	Skill       Skill
	Achievement Achievement
	Attributes  []Attribute
}

// Skill is the optional skill group of a row.
type Skill struct {
	ProviderName  string
	Name          string
	CertifierID   string
	CertifiedDate string
	MetricValue   string
}

// Fields implements Group.
func (s Skill) Fields() Fields {
	return Fields{
		{Column: ColSkillProviderName, Label: "skill provider name", Value: s.ProviderName, Required: true},
		{Column: ColSkillName, Label: "skill name", Value: s.Name, Required: true},
		{Column: ColSkillCertifierID, Label: "skill certifier id", Value: s.CertifierID},
		{Column: ColSkillCertifiedDate, Label: "skill certified date", Value: s.CertifiedDate},
		{Column: ColMetricValue, Label: "metric value", Value: s.MetricValue},
	}
}

// GroupLabel implements Group.
func (Skill) GroupLabel() string { return "skill" }

// Achievement is the optional achievement group of a row.
type Achievement struct {
	ProviderName  string
	CertifierID   string
	CertifiedDate string
	Name          string
	URI           string
}

// Fields implements Group.
func (a Achievement) Fields() Fields {
	return Fields{
		{Column: ColAchievementsProviderName, Label: "achievements provider name", Value: a.ProviderName, Required: true},
		{Column: ColAchievementsName, Label: "achievements name", Value: a.Name, Required: true},
		{Column: ColAchievementsCertifierID, Label: "achievements certifier id", Value: a.CertifierID},
		{Column: ColAchievementsCertifiedDate, Label: "achievements certified date", Value: a.CertifiedDate},
		{Column: ColAchievementsURI, Label: "achievements uri", Value: a.URI},
	}
}

// GroupLabel implements Group.
func (Achievement) GroupLabel() string { return "achievement" }

// Attribute is one entry of the repeating attribute groups.
type Attribute struct {
	// Index is the 1-based column suffix the tuple was read from.
	Index     int
	GroupName string
	Name      string
	Value     string
}

// Fields implements Group.
func (a Attribute) Fields() Fields {
	idx := strconv.Itoa(a.Index)
	return Fields{
		{Column: attributeGroupNamePrefix + idx, Label: "attribute group name", Value: a.GroupName, Required: true},
		{Column: attributeNamePrefix + idx, Label: "attribute name", Value: a.Name, Required: true},
		{Column: attributeValuePrefix + idx, Label: "attribute value", Value: a.Value, Required: true},
	}
}

// GroupLabel implements Group.
func (a Attribute) GroupLabel() string { return "attribute " + strconv.Itoa(a.Index) }

// New builds a row from the non-empty cells of one sheet line. Attribute
// tuples are read for i = 1, 2, ... and stop at the first absent
// attributeValue{i}.
func New(line int, cells map[string]string) *Row {
	get := func(col string) string { return strings.TrimSpace(cells[col]) }

	row := &Row{
		Line:         line,
		Cells:        cells,
		Handle:       get(ColHandle),
		Email:        get(ColEmail),
		FirstName:    get(ColFirstName),
		LastName:     get(ColLastName),
		CountryName:  get(ColCountryName),
		ProviderType: get(ColProviderType),
		Provider:     get(ColProvider),
		UserID:       get(ColUserID),
		Skill: Skill{
			ProviderName:  get(ColSkillProviderName),
			Name:          get(ColSkillName),
			CertifierID:   get(ColSkillCertifierID),
			CertifiedDate: get(ColSkillCertifiedDate),
			MetricValue:   get(ColMetricValue),
		},
		Achievement: Achievement{
			ProviderName:  get(ColAchievementsProviderName),
			CertifierID:   get(ColAchievementsCertifierID),
			CertifiedDate: get(ColAchievementsCertifiedDate),
			Name:          get(ColAchievementsName),
			URI:           get(ColAchievementsURI),
		},
	}

	for i := 1; ; i++ {
		idx := strconv.Itoa(i)
		value := get(attributeValuePrefix + idx)
		if value == "" {
			break
		}
		row.Attributes = append(row.Attributes, Attribute{
			Index:     i,
			GroupName: get(attributeGroupNamePrefix + idx),
			Name:      get(attributeNamePrefix + idx),
			Value:     value,
		})
	}

	return row
}

// Values renders the row cells in header order. Missing cells are empty.
func (r *Row) Values(header []string) []string {
	out := make([]string, len(header))
	for i, col := range header {
		out[i] = r.Cells[col]
	}
	return out
}

// Key identifies the row in logs: the handle or email, falling back to the line.
func (r *Row) Key() string {
	switch {
	case r.Handle != "":
		return r.Handle
	case r.Email != "":
		return r.Email
	default:
		return "line " + strconv.Itoa(r.Line)
	}
}
