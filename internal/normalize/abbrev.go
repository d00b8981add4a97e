package normalize

import (
	"sort"
	"strings"
)

// The abbreviation table is curated, not learned. Long forms map to the short
// forms that appear in counselling publications, grouped by domain area.
// Everything here is normalized-form (uppercase, no punctuation).

var institutionalTerms = map[string]string{
	"GOVERNMENT":      "GOVT",
	"MEDICAL":         "MED",
	"COLLEGE":         "COLL",
	"INSTITUTE":       "INST",
	"INSTITUTION":     "INSTN",
	"UNIVERSITY":      "UNIV",
	"HOSPITAL":        "HOSP",
	"SCHOOL":          "SCH",
	"ACADEMY":         "ACAD",
	"SCIENCES":        "SCI",
	"SCIENCE":         "SCI",
	"RESEARCH":        "RES",
	"EDUCATION":       "EDU",
	"EDUCATIONAL":     "EDU",
	"FOUNDATION":      "FDN",
	"CENTRE":          "CTR",
	"CENTER":          "CTR",
	"NATIONAL":        "NATL",
	"INTERNATIONAL":   "INTL",
	"REGIONAL":        "RGNL",
	"POSTGRADUATE":    "PG",
	"UNDERGRADUATE":   "UG",
	"DENTAL":          "DENT",
	"AYURVEDIC":       "AYUR",
	"AYURVEDA":        "AYUR",
	"HOMOEOPATHIC":    "HOM",
	"HOMEOPATHIC":     "HOM",
	"PHARMACY":        "PHARM",
	"PHARMACEUTICAL":  "PHARM",
	"NURSING":         "NSG",
	"PARAMEDICAL":     "PARAMED",
	"VETERINARY":      "VET",
	"ENGINEERING":     "ENGG",
	"TECHNOLOGY":      "TECH",
	"TECHNICAL":       "TECH",
	"POLYTECHNIC":     "POLY",
	"CAMPUS":          "CAMP",
	"FACULTY":         "FAC",
	"DEPARTMENT":      "DEPT",
	"LABORATORY":      "LAB",
	"LIBRARY":         "LIB",
	"ASSOCIATION":     "ASSN",
	"SOCIETY":         "SOC",
	"TRUST":           "TR",
	"MEMORIAL":        "MEM",
	"CHARITABLE":      "CHAR",
	"MISSION":         "MSN",
	"SUPERSPECIALITY": "SS",
	"SUPERSPECIALTY":  "SS",
	"MULTISPECIALITY": "MS",
	"MULTISPECIALTY":  "MS",
}

var clinicalTerms = map[string]string{
	"ANAESTHESIOLOGY":     "ANAES",
	"ANAESTHESIA":         "ANAES",
	"ANESTHESIOLOGY":      "ANAES",
	"CARDIOLOGY":          "CARDIO",
	"CARDIOTHORACIC":      "CT",
	"DERMATOLOGY":         "DERM",
	"VENEREOLOGY":         "VEN",
	"LEPROSY":             "LEP",
	"ENDOCRINOLOGY":       "ENDO",
	"GASTROENTEROLOGY":    "GASTRO",
	"GYNAECOLOGY":         "GYNAE",
	"GYNECOLOGY":          "GYNAE",
	"OBSTETRICS":          "OBST",
	"OPHTHALMOLOGY":       "OPHTHAL",
	"ORTHOPAEDICS":        "ORTHO",
	"ORTHOPEDICS":         "ORTHO",
	"OTORHINOLARYNGOLOGY": "ENT",
	"PAEDIATRICS":         "PAED",
	"PEDIATRICS":          "PAED",
	"PSYCHIATRY":          "PSYCH",
	"PULMONOLOGY":         "PULMO",
	"RADIOLOGY":           "RADIO",
	"RADIODIAGNOSIS":      "RD",
	"RADIOTHERAPY":        "RT",
	"NEPHROLOGY":          "NEPHRO",
	"NEUROLOGY":           "NEURO",
	"NEUROSURGERY":        "NS",
	"ONCOLOGY":            "ONCO",
	"PATHOLOGY":           "PATH",
	"MICROBIOLOGY":        "MICRO",
	"BIOCHEMISTRY":        "BIOCHEM",
	"PHYSIOLOGY":          "PHYSIO",
	"PHARMACOLOGY":        "PHARMA",
	"PHYSIOTHERAPY":       "PT",
	"COMMUNITY":           "COMM",
	"PREVENTIVE":          "PREV",
	"MEDICINE":            "MED",
	"SURGERY":             "SURG",
	"SURGICAL":            "SURG",
	"TUBERCULOSIS":        "TB",
	"RESPIRATORY":         "RESP",
	"EMERGENCY":           "EMER",
	"TRANSFUSION":         "TRANS",
	"FORENSIC":            "FOR",
	"DIPLOMATE":           "DIP",
	"DIPLOMA":             "DIP",
	"FELLOWSHIP":          "FELLOW",
	"BACHELOR":            "B",
	"MASTER":              "M",
	"DOCTOR":              "DR",
}

var administrativeTerms = map[string]string{
	"DISTRICT":       "DIST",
	"GENERAL":        "GEN",
	"MINORITY":       "MIN",
	"PRIVATE":        "PVT",
	"MANAGEMENT":     "MGMT",
	"CORPORATION":    "CORPN",
	"MUNICIPAL":      "MUNI",
	"AUTONOMOUS":     "AUTO",
	"ADMINISTRATION": "ADMIN",
	"EMPLOYEES":      "EMP",
	"INSURANCE":      "INS",
	"RAILWAY":        "RLY",
	"ARMED":          "AF",
	"FORCES":         "AF",
	"WELFARE":        "WEL",
	"DEVELOPMENT":    "DEV",
	"LIMITED":        "LTD",
	"NUMBER":         "NO",
	"SAINT":          "ST",
	"NORTH":          "N",
	"SOUTH":          "S",
	"EAST":           "E",
	"WEST":           "W",
	"CENTRAL":        "CENT",
	"UPPER":          "U",
	"LOWER":          "L",
	"GREATER":        "GR",
	"JUNIOR":         "JR",
	"SENIOR":         "SR",
}

// institutionalPatterns are fixed multi-word rules that dominate generic
// initials: "GOVERNMENT MEDICAL COLLEGE" is known in publications as "GMC",
// not by whatever its full initials would be.
var institutionalPatterns = map[string]string{
	"GOVERNMENT MEDICAL COLLEGE":  "GMC",
	"GOVERNMENT DENTAL COLLEGE":   "GDC",
	"GOVERNMENT GENERAL HOSPITAL": "GGH",
	"PRIMARY HEALTH CENTRE":       "PHC",
	"COMMUNITY HEALTH CENTRE":     "CHC",
	"DISTRICT HOSPITAL":           "DH",

	"ALL INDIA INSTITUTE OF MEDICAL SCIENCES":                             "AIIMS",
	"JAWAHARLAL INSTITUTE OF POSTGRADUATE MEDICAL EDUCATION AND RESEARCH": "JIPMER",
	"POSTGRADUATE INSTITUTE OF MEDICAL EDUCATION AND RESEARCH":            "PGIMER",

	"EMPLOYEES STATE INSURANCE CORPORATION": "ESIC",
	"EMPLOYEES STATE INSURANCE":             "ESI",
	"OBSTETRICS AND GYNAECOLOGY":            "OBG",
	"EAR NOSE AND THROAT":                   "ENT",
	"DIPLOMATE OF NATIONAL BOARD":           "DNB",

	"BACHELOR OF MEDICINE AND BACHELOR OF SURGERY": "MBBS",
	"BACHELOR OF DENTAL SURGERY":                   "BDS",
	"MASTER OF DENTAL SURGERY":                     "MDS",
	"DOCTOR OF MEDICINE":                           "MD",
	"MASTER OF SURGERY":                            "MS",
	"MASTER OF CHIRURGIAE":                         "MCH",
	"DOCTORATE OF MEDICINE":                        "DM",
}

// Expander performs bidirectional lookup between long-form terms and their
// abbreviations. It is immutable after construction; build one at startup and
// share it freely across workers.
type Expander struct {
	longToShort map[string]string
	shortToLong map[string]string
	patterns    map[string]string
}

// NewExpander builds an expander from the curated tables. Extra entries (from
// config) may be layered on top; they win over the built-in table.
func NewExpander(extra map[string]string) *Expander {
	e := &Expander{
		longToShort: make(map[string]string, 160),
		shortToLong: make(map[string]string, 160),
		patterns:    make(map[string]string, len(institutionalPatterns)),
	}
	for _, table := range []map[string]string{institutionalTerms, clinicalTerms, administrativeTerms, extra} {
		for long, short := range table {
			e.longToShort[long] = short
			// First long form wins for the reverse direction; table order is
			// institutional → clinical → administrative.
			if _, seen := e.shortToLong[short]; !seen {
				e.shortToLong[short] = long
			}
		}
	}
	for pattern, short := range institutionalPatterns {
		e.patterns[pattern] = short
		if _, seen := e.shortToLong[short]; !seen {
			e.shortToLong[short] = pattern
		}
	}
	return e
}

// Abbreviate returns the short form of a long-form term, if curated.
func (e *Expander) Abbreviate(term string) (string, bool) {
	short, ok := e.longToShort[strings.ToUpper(term)]
	return short, ok
}

// ExpandTerm returns the long form of an abbreviation, if curated.
func (e *Expander) ExpandTerm(abbrev string) (string, bool) {
	long, ok := e.shortToLong[strings.ToUpper(abbrev)]
	return long, ok
}

// ExpandName rewrites every recognized abbreviation token in a canonical name
// to its long form. "GOVT MED COLL X" becomes "GOVERNMENT MEDICAL COLLEGE X".
func (e *Expander) ExpandName(canonical string) string {
	tokens := Tokens(canonical)
	for i, t := range tokens {
		if long, ok := e.shortToLong[t]; ok {
			tokens[i] = long
		}
	}
	return strings.Join(tokens, " ")
}

// Generate produces the candidate short forms of a canonical name. Four
// derivations run unconditionally and their results are unioned:
//
//  1. initials of all words
//  2. initials of non-stop words
//  3. each curated long-form token replaced by its abbreviation, other
//     words kept
//  4. fixed institutional patterns replaced by their known short form
//
// The result is sorted so repeated calls compare equal.
func (e *Expander) Generate(canonical string) []string {
	tokens := Tokens(canonical)
	if len(tokens) == 0 {
		return nil
	}

	set := make(map[string]struct{}, 4)

	// 1. Initials of every word.
	set[initials(tokens)] = struct{}{}

	// 2. Initials of content words only.
	content := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !stopWords[t] {
			content = append(content, t)
		}
	}
	if len(content) > 0 {
		set[initials(content)] = struct{}{}
	}

	// 3. Token-wise substitution of curated long forms.
	substituted := make([]string, len(tokens))
	changed := false
	for i, t := range tokens {
		if short, ok := e.longToShort[t]; ok {
			substituted[i] = short
			changed = true
		} else {
			substituted[i] = t
		}
	}
	if changed {
		set[strings.Join(substituted, " ")] = struct{}{}
	}

	// 4. Fixed institutional patterns, longest pattern first so "GOVERNMENT
	// MEDICAL COLLEGE" is not shadowed by a shorter overlapping rule.
	name := strings.Join(tokens, " ")
	for _, pattern := range e.patternsByLength() {
		if idx := indexOfPhrase(name, pattern); idx >= 0 {
			replaced := strings.TrimSpace(name[:idx] + e.patterns[pattern] + name[idx+len(pattern):])
			set[strings.Join(strings.Fields(replaced), " ")] = struct{}{}
		}
	}

	delete(set, name) // a "candidate" identical to the input adds nothing

	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (e *Expander) patternsByLength() []string {
	patterns := make([]string, 0, len(e.patterns))
	for p := range e.patterns {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool {
		if len(patterns[i]) != len(patterns[j]) {
			return len(patterns[i]) > len(patterns[j])
		}
		return patterns[i] < patterns[j]
	})
	return patterns
}

func initials(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		for _, r := range t {
			b.WriteRune(r)
			break
		}
	}
	return b.String()
}

// indexOfPhrase finds phrase in name on word boundaries.
func indexOfPhrase(name, phrase string) int {
	idx := strings.Index(name, phrase)
	for idx >= 0 {
		beforeOK := idx == 0 || name[idx-1] == ' '
		end := idx + len(phrase)
		afterOK := end == len(name) || name[end] == ' '
		if beforeOK && afterOK {
			return idx
		}
		next := strings.Index(name[idx+1:], phrase)
		if next < 0 {
			return -1
		}
		idx = idx + 1 + next
	}
	return -1
}
