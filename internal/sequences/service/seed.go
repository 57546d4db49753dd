package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"outreach_engine_backend/platform/apperr"
)

type seedFile struct {
	Sequences []seedSequence `yaml:"sequences"`
}

type seedSequence struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Active      bool       `yaml:"active"`
	Steps       []seedStep `yaml:"steps"`
}

type seedStep struct {
	StepNumber     int      `yaml:"stepNumber"`
	TemplateID     string   `yaml:"templateId"`
	DelayDays      int      `yaml:"delayDays"`
	DelayHours     int      `yaml:"delayHours"`
	SkipConditions []string `yaml:"skipConditions"`
}

// SeedFromFile creates the sequences declared in the YAML file. Sequences
// whose name already exists are left untouched, so re-running the seed on
// every startup is safe.
func (s *Service) SeedFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse seed file: %w", err)
	}

	for _, seq := range file.Sequences {
		in := CreateSequenceInput{
			Name:        seq.Name,
			Description: seq.Description,
			Active:      seq.Active,
		}
		for _, step := range seq.Steps {
			in.Steps = append(in.Steps, CreateStepInput{
				StepNumber:     step.StepNumber,
				TemplateID:     step.TemplateID,
				Delay:          time.Duration(step.DelayDays)*24*time.Hour + time.Duration(step.DelayHours)*time.Hour,
				SkipConditions: step.SkipConditions,
			})
		}

		_, err := s.Create(ctx, in)
		if apperr.Is(err, apperr.KindConflict) {
			s.log.Debug("seed sequence already present", "name", seq.Name)
			continue
		}
		if err != nil {
			return fmt.Errorf("seed sequence %q: %w", seq.Name, err)
		}
		s.log.Info("seed sequence created", "name", seq.Name)
	}
	return nil
}
