package resume

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ternarybob/aptus/internal/common"
	"github.com/ternarybob/aptus/internal/models"
)

// BuildSections flattens the profile into coarse embeddable sections: one
// for the summary, one for the skill list, one per experience, project and
// education entry.
func BuildSections(fingerprint string, profile *models.ResumeProfile) []*models.ResumeSectionEmbedding {
	sections := make([]*models.ResumeSectionEmbedding, 0, 4+len(profile.Experience)+len(profile.Projects))

	add := func(sectionType models.SectionType, index int, text string, data map[string]string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		sections = append(sections, &models.ResumeSectionEmbedding{
			ID:                uuid.New().String(),
			ResumeFingerprint: fingerprint,
			SectionType:       sectionType,
			SectionIndex:      index,
			SourceText:        text,
			SourceData:        data,
		})
	}

	add(models.SectionSummary, 0, profile.Summary, nil)
	if len(profile.Skills) > 0 {
		add(models.SectionSkills, 0, strings.Join(profile.Skills, ", "), nil)
	}
	for i, exp := range profile.Experience {
		add(models.SectionExperience, i, experienceText(&exp), map[string]string{
			"title":      exp.Title,
			"company":    exp.Company,
			"start_date": exp.StartDate,
			"end_date":   exp.EndDate,
		})
	}
	for i, proj := range profile.Projects {
		text := proj.Name
		if proj.Description != "" {
			text += ": " + proj.Description
		}
		if len(proj.Technologies) > 0 {
			text += " (" + strings.Join(proj.Technologies, ", ") + ")"
		}
		add(models.SectionProjects, i, text, nil)
	}
	for i, edu := range profile.Education {
		parts := []string{}
		if edu.Degree != "" {
			parts = append(parts, edu.Degree)
		}
		if edu.Field != "" {
			parts = append(parts, edu.Field)
		}
		if edu.Institution != "" {
			parts = append(parts, edu.Institution)
		}
		add(models.SectionEducation, i, strings.Join(parts, ", "), nil)
	}
	return sections
}

// BuildEvidence derives atomic claims from the profile: every experience
// highlight, project description and individual skill becomes one unit.
// Dated roles carry their duration so requirement year thresholds can be
// checked against real tenure.
func BuildEvidence(fingerprint string, profile *models.ResumeProfile) []*models.EvidenceUnit {
	units := make([]*models.EvidenceUnit, 0, len(profile.Skills))

	add := func(section models.SectionType, index int, text string, years *float64, yearsContext string) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		unit := &models.EvidenceUnit{
			ID:                uuid.New().String(),
			ResumeFingerprint: fingerprint,
			Text:              text,
			SourceSection:     section,
			SourceIndex:       index,
			YearsValue:        years,
			YearsContext:      yearsContext,
		}
		if unit.YearsValue == nil {
			if v, context, ok := common.ParseYears(text); ok {
				unit.YearsValue = &v
				unit.YearsContext = context
			}
		}
		units = append(units, unit)
	}

	for i, exp := range profile.Experience {
		tenure := tenureYears(exp.StartDate, exp.EndDate)
		context := exp.Title
		if exp.Company != "" {
			context += " at " + exp.Company
		}
		if exp.Description != "" {
			add(models.SectionExperience, i, context+": "+exp.Description, tenure, context)
		}
		for _, highlight := range exp.Highlights {
			add(models.SectionExperience, i, highlight, tenure, context)
		}
		if len(exp.Technologies) > 0 {
			add(models.SectionExperience, i,
				fmt.Sprintf("Used %s as %s", strings.Join(exp.Technologies, ", "), context),
				tenure, context)
		}
	}
	for i, proj := range profile.Projects {
		text := proj.Description
		if text == "" && len(proj.Technologies) > 0 {
			text = proj.Name + " built with " + strings.Join(proj.Technologies, ", ")
		}
		add(models.SectionProjects, i, text, nil, proj.Name)
	}
	for i, skill := range profile.Skills {
		add(models.SectionSkills, i, skill, nil, "")
	}
	return units
}

func experienceText(exp *models.ExperienceEntry) string {
	var b strings.Builder
	b.WriteString(exp.Title)
	if exp.Company != "" {
		b.WriteString(" at ")
		b.WriteString(exp.Company)
	}
	if exp.StartDate != "" {
		b.WriteString(" (")
		b.WriteString(exp.StartDate)
		b.WriteString(" - ")
		if exp.EndDate != "" {
			b.WriteString(exp.EndDate)
		} else {
			b.WriteString("present")
		}
		b.WriteString(")")
	}
	if exp.Description != "" {
		b.WriteString(". ")
		b.WriteString(exp.Description)
	}
	for _, h := range exp.Highlights {
		b.WriteString(" ")
		b.WriteString(h)
	}
	return b.String()
}

// tenureYears computes role duration from "2006-01" or "2006" style dates.
// An empty end date means the role is current.
func tenureYears(start, end string) *float64 {
	startTime, ok := parseLooseDate(start)
	if !ok {
		return nil
	}
	endTime, ok := parseLooseDate(end)
	if !ok {
		endTime = time.Now()
	}
	if endTime.Before(startTime) {
		return nil
	}
	years := endTime.Sub(startTime).Hours() / (24 * 365.25)
	return &years
}

func parseLooseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006-01-02", "2006-01", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
