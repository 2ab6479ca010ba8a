package service

import (
	"fmt"
	"strconv"

	"github.com/smallbiznis/lunara/internal/config"
	dsdomain "github.com/smallbiznis/lunara/internal/datasource/domain"
	"github.com/smallbiznis/lunara/pkg/jsondoc"
	"gorm.io/datatypes"
)

// checkConfig rejects documents carrying credential-shaped keys at any depth.
// The returned error names the offending path.
func checkConfig(policy config.CredentialPolicy, doc map[string]any) error {
	return walkConfig(policy, "", doc)
}

func walkConfig(policy config.CredentialPolicy, path string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			if policy.IsCredentialKey(key) {
				return fmt.Errorf("%w: %s", dsdomain.ErrCredentialInConfig, childPath)
			}
			if err := walkConfig(policy, childPath, child); err != nil {
				return err
			}
		}
	case []any:
		for i, child := range v {
			if err := walkConfig(policy, path+"["+strconv.Itoa(i)+"]", child); err != nil {
				return err
			}
		}
	}
	return nil
}

func normalizeConfig(doc map[string]any) (datatypes.JSONMap, error) {
	out, err := jsondoc.Normalize(doc)
	if err != nil {
		return nil, dsdomain.ErrInvalidConfig
	}
	return datatypes.JSONMap(out), nil
}
