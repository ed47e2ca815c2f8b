// Package config loads and validates job configuration from a CUE package.
//
// The schema ships inside the binary; concrete config files (board GIDs,
// custom-field GIDs, enum option mappings, policy knobs) unify with it at
// load time, so a typo'd field name or a non-numeric GID fails the load
// rather than a mutation call at 3am.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// Config is the decoded job configuration.
type Config struct {
	Policy         Policy            `json:"policy"`
	Gateway        GatewayConfig     `json:"gateway"`
	MappingUploads MappingUploadsJob `json:"mapping_uploads"`
	ThermalUploads ThermalUploadsJob `json:"thermal_uploads"`
	SurveyIssues   SurveyIssuesJob   `json:"survey_issues"`
	BitbucketPRs   BitbucketPRsJob   `json:"bitbucket_prs"`
}

// Policy holds engine-wide knobs.
type Policy struct {
	UpdateOnlyOnCompletion bool `json:"update_only_on_completion"`
	Workers                int  `json:"workers"`
	StrictMatching         bool `json:"strict_matching"`
}

// GatewayConfig locates the internal gateway API.
type GatewayConfig struct {
	BaseURL string `json:"base_url"`
}

// MappingUploadsJob configures the mapping-uploads board.
type MappingUploadsJob struct {
	Project  string                `json:"project"`
	Sections MappingUploadSections `json:"sections"`
	Fields   MappingUploadFields   `json:"fields"`
	Enums    EnumMap               `json:"enums"`
}

// MappingUploadSections names the board buckets of the mapping board.
type MappingUploadSections struct {
	DroneService        string `json:"drone_service"`
	DroneServiceUploads string `json:"drone_service_uploads"`
	SelfServiced        string `json:"self_serviced"`
	Satellite           string `json:"satellite"`
}

// MappingUploadFields maps domain fields to board custom-field GIDs.
type MappingUploadFields struct {
	Client             string `json:"client"`
	Farm               string `json:"farm"`
	BlocksCompleted    string `json:"blocks_completed"`
	BlocksUploaded     string `json:"blocks_uploaded"`
	DroneService       string `json:"drone_service"`
	ImageType          string `json:"image_type"`
	ServiceType        string `json:"service_type"`
	PercentageComplete string `json:"percentage_complete"`
	SLAOnTrack         string `json:"sla_on_track"`
}

// ThermalUploadsJob configures the thermal-uploads board.
type ThermalUploadsJob struct {
	Project  string                `json:"project"`
	ToolsURL string                `json:"tools_url"`
	Sections ThermalUploadSections `json:"sections"`
	Fields   ThermalUploadFields   `json:"fields"`
}

// ThermalUploadSections names the board buckets of the thermal board.
type ThermalUploadSections struct {
	Uploads string `json:"uploads"`
	Surveys string `json:"surveys"`
}

// ThermalUploadFields maps upload fields to board custom-field GIDs.
type ThermalUploadFields struct {
	ClientID     string `json:"client_id"`
	ClientName   string `json:"client_name"`
	UploadedFrom string `json:"uploaded_from"`
	DroneService string `json:"drone_service"`
	Hectares     string `json:"hectares"`
}

// SurveyIssuesJob configures the survey-issues board.
type SurveyIssuesJob struct {
	Project           string            `json:"project"`
	Fields            SurveyIssueFields `json:"fields"`
	Enums             EnumMap           `json:"enums"`
	ClassifySLABreach bool              `json:"classify_sla_breach"`
}

// SurveyIssueFields maps survey fields to board custom-field GIDs.
type SurveyIssueFields struct {
	CurrentStage string `json:"current_stage"`
	IssueType    string `json:"issue_type"`
	SLAOnTrack   string `json:"sla_on_track"`
	Client       string `json:"client"`
}

// BitbucketPRsJob configures the per-reviewer PR boards.
type BitbucketPRsJob struct {
	Workspace string              `json:"workspace"`
	Reviewers map[string]Reviewer `json:"reviewers"`
}

// Reviewer pairs a Bitbucket reviewer (by display name) with their Asana
// identity and personal review project.
type Reviewer struct {
	Assignee string `json:"assignee"`
	Project  string `json:"project"`
}

// Environment variable names. The completion-suppression switch keeps the
// name the original jobs used so deployments carry over unchanged.
const (
	EnvUpdateOnlyOnCompletion = "UPDATE_TASK_ONLY_ON_COMPLETE_STATUS"
	EnvWorkers                = "SYNC_WORKERS"
)

// ApplyEnv overlays environment overrides onto loaded config. Unset
// variables leave the config value alone; malformed values are an error
// (silently ignoring a mistyped override is worse than failing the run).
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvUpdateOnlyOnCompletion); ok {
		b, err := parseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvUpdateOnlyOnCompletion, err)
		}
		c.Policy.UpdateOnlyOnCompletion = b
	}
	if v, ok := os.LookupEnv(EnvWorkers); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 16 {
			return fmt.Errorf("%s: want integer in [1,16], got %q", EnvWorkers, v)
		}
		c.Policy.Workers = n
	}
	return nil
}

// parseBool accepts the truthy spellings the original service accepted
// ("true"/"1"/"t", case-insensitive) plus their negations.
func parseBool(v string) (bool, error) {
	switch v {
	case "true", "True", "TRUE", "1", "t", "T":
		return true, nil
	case "false", "False", "FALSE", "0", "f", "F":
		return false, nil
	}
	return false, errors.New("not a boolean")
}
