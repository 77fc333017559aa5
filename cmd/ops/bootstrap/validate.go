package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tripwise/internal/types"
)

// validateDataRoot inspects an existing data root and returns a list of
// structural problems. An empty list means the root is usable by the API.
// The returned error reports failures of the validation itself (e.g. an
// unreadable directory), not catalog problems.
func validateDataRoot(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("inspecting data root: %w", err)
	}
	if !info.IsDir() {
		return []string{fmt.Sprintf("%s is not a directory", root)}, nil
	}

	var problems []string

	problems = append(problems, checkCollection(root, types.ResourceUsers, func(raw json.RawMessage) []string {
		var users []types.User
		if err := json.Unmarshal(raw, &users); err != nil {
			return []string{fmt.Sprintf("%s: not a user collection: %v", types.ResourceUsers, err)}
		}
		var out []string
		seen := make(map[string]bool, len(users))
		for i, u := range users {
			if u.Email == "" {
				out = append(out, fmt.Sprintf("%s: user %d has no email", types.ResourceUsers, i))
				continue
			}
			key := types.CanonicalizeEmail(u.Email)
			if seen[key] {
				out = append(out, fmt.Sprintf("%s: duplicate email %s", types.ResourceUsers, key))
			}
			seen[key] = true
			if !types.IsKnownPlan(u.Plan) {
				out = append(out, fmt.Sprintf("%s: user %s has unknown plan %q", types.ResourceUsers, key, u.Plan))
			}
		}
		return out
	})...)

	problems = append(problems, checkCollection(root, types.ResourcePendingSignups, func(raw json.RawMessage) []string {
		var pending []types.PendingSignup
		if err := json.Unmarshal(raw, &pending); err != nil {
			return []string{fmt.Sprintf("%s: not a pending signup collection: %v", types.ResourcePendingSignups, err)}
		}
		return nil
	})...)

	countryProblems, err := validateCountries(root)
	if err != nil {
		return nil, err
	}
	problems = append(problems, countryProblems...)

	return problems, nil
}

// checkCollection reads a catalog file and runs a shape check on it. A
// missing file is a problem: init creates both collections.
func checkCollection(root, name string, check func(json.RawMessage) []string) []string {
	raw, err := os.ReadFile(filepath.Join(root, name))
	if err != nil {
		if os.IsNotExist(err) {
			return []string{fmt.Sprintf("%s is missing (run bootstrap init)", name)}
		}
		return []string{fmt.Sprintf("%s: %v", name, err)}
	}
	return check(raw)
}

// validateCountries walks countries/ and checks every document parses as a
// country record with a name and named cities.
func validateCountries(root string) ([]string, error) {
	dir := filepath.Join(root, types.ResourceCountriesDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{fmt.Sprintf("%s/ is missing (run bootstrap init)", types.ResourceCountriesDir)}, nil
		}
		return nil, fmt.Errorf("reading countries directory: %w", err)
	}

	var problems []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		rel := types.ResourceCountriesDir + "/" + entry.Name()

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", rel, err))
			continue
		}

		var country types.Country
		if err := json.Unmarshal(raw, &country); err != nil {
			problems = append(problems, fmt.Sprintf("%s: not a country record: %v", rel, err))
			continue
		}
		if country.Name == "" {
			problems = append(problems, fmt.Sprintf("%s: country has no name", rel))
		}
		for i, city := range country.Cities {
			if city.Name == "" {
				problems = append(problems, fmt.Sprintf("%s: city %d has no name", rel, i))
			}
		}
	}
	return problems, nil
}
