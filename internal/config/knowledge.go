package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vision-rehab-cdss-server/internal/domain"
)

// Knowledge base file layout under the rules directory:
//
//	techniques/*.yaml            intervention rule files
//	mappings/code_mappings.yaml  ICD-10, LOINC, and WHO lookup tables
//	guardrails/contradictions.yaml
//
// All files are loaded in full at startup; any malformed file is fatal.
// Rule and mapping keys carry dots (ICD-10 codes such as H35.3), so these
// files are decoded with yaml.v3 directly rather than through Viper's
// delimiter-splitting key handling.

// ruleFile is the on-disk shape of one technique rule file.
type ruleFile struct {
	Rules []domain.ClinicalRule `yaml:"rules"`
}

// guardrailFile is the on-disk shape of the contradiction rule file.
type guardrailFile struct {
	Contradictions []domain.GuardrailRule `yaml:"contradictions"`
}

var knownChecks = map[domain.GuardrailCheck]bool{
	domain.CheckGoalVsCapability:      true,
	domain.CheckDiagnosisVsPattern:    true,
	domain.CheckCognitiveVsTechnique:  true,
	domain.CheckAgeSafety:             true,
	domain.CheckDataIntegrity:         true,
	domain.CheckEquipmentAvailability: true,
}

// LoadKnowledgeBase reads the complete declarative knowledge base from
// rulesDir. The returned KnowledgeBase is immutable and safe to share across
// concurrent evaluations.
func LoadKnowledgeBase(rulesDir string) (*domain.KnowledgeBase, error) {
	rules, err := loadRules(filepath.Join(rulesDir, "techniques"))
	if err != nil {
		return nil, fmt.Errorf("failed to load technique rules: %w", err)
	}

	mappings, err := loadMappings(filepath.Join(rulesDir, "mappings", "code_mappings.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load code mappings: %w", err)
	}

	guardrails, err := loadGuardrails(filepath.Join(rulesDir, "guardrails", "contradictions.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load guardrail rules: %w", err)
	}

	return &domain.KnowledgeBase{
		Rules:      rules,
		Mappings:   *mappings,
		Guardrails: guardrails,
	}, nil
}

// loadRules reads every YAML file under dir in lexical order so the loaded
// rule order is reproducible across runs.
func loadRules(dir string) ([]domain.ClinicalRule, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules directory %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var rules []domain.ClinicalRule
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read rule file %s: %w", path, err)
		}

		var file ruleFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("failed to parse rule file %s: %w", path, err)
		}

		for i := range file.Rules {
			file.Rules[i].SourceFile = name
			if err := file.Rules[i].Validate(); err != nil {
				return nil, fmt.Errorf("invalid rule in %s: %w", name, err)
			}
		}
		rules = append(rules, file.Rules...)
	}

	return rules, nil
}

func loadMappings(path string) (*domain.CodeMappings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	mappings := &domain.CodeMappings{}
	if err := yaml.Unmarshal(data, mappings); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if mappings.ICD10ToDiagnosis == nil {
		mappings.ICD10ToDiagnosis = map[string]domain.DiagnosisMapping{}
	}
	if mappings.LOINCToObservation == nil {
		mappings.LOINCToObservation = map[string]domain.ObservationMapping{}
	}
	if mappings.WHOClassification == nil {
		mappings.WHOClassification = map[string]domain.WHOBand{}
	}

	return mappings, nil
}

func loadGuardrails(path string) ([]domain.GuardrailRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file guardrailFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	for _, rule := range file.Contradictions {
		if rule.ID == "" {
			return nil, fmt.Errorf("guardrail rule without id in %s", path)
		}
		if !knownChecks[rule.Check] {
			return nil, fmt.Errorf("guardrail %s: %w: %q", rule.ID, domain.ErrUnknownGuardrailCheck, rule.Check)
		}
	}

	return file.Contradictions, nil
}
