package config

import (
	"reflect"
	"strings"
)

// ConfigChange 配置变更
type ConfigChange struct {
	Path            string      `json:"path"` // 配置路径（如 "backtest.strategy.fast_window"）
	OldValue        interface{} `json:"old_value"`
	NewValue        interface{} `json:"new_value"`
	RequiresRestart bool        `json:"requires_restart"`
}

// ConfigDiff 配置差异
type ConfigDiff struct {
	Changes         []ConfigChange `json:"changes"`
	RequiresRestart bool           `json:"requires_restart"` // 是否有需要重启的变更
}

// Empty 没有任何变更
func (d *ConfigDiff) Empty() bool {
	return len(d.Changes) == 0
}

// 需要重启才能生效的配置路径（前缀匹配）
var restartPaths = []string{
	"app.name",
	"system.log_dir",
	"system.timezone",
	"database",
	"storage",
	"distributed_lock",
	"web",
	"metrics.enabled",
	"binance.testnet",
}

// DiffConfig 对比两个配置，按 yaml 路径生成差异
func DiffConfig(oldConfig, newConfig *Config) *ConfigDiff {
	diff := &ConfigDiff{Changes: []ConfigChange{}}
	diff.compareStruct(reflect.ValueOf(*oldConfig), reflect.ValueOf(*newConfig), "")

	for _, change := range diff.Changes {
		if change.RequiresRestart {
			diff.RequiresRestart = true
			break
		}
	}
	return diff
}

func (d *ConfigDiff) compareStruct(oldVal, newVal reflect.Value, basePath string) {
	typ := oldVal.Type()

	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if !field.IsExported() {
			continue
		}

		name := strings.Split(field.Tag.Get("yaml"), ",")[0]
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(field.Name)
		}
		path := name
		if basePath != "" {
			path = basePath + "." + name
		}

		oldField, newField := oldVal.Field(i), newVal.Field(i)
		if oldField.Kind() == reflect.Struct {
			d.compareStruct(oldField, newField, path)
			continue
		}
		if !reflect.DeepEqual(oldField.Interface(), newField.Interface()) {
			d.Changes = append(d.Changes, ConfigChange{
				Path:            path,
				OldValue:        oldField.Interface(),
				NewValue:        newField.Interface(),
				RequiresRestart: requiresRestart(path),
			})
		}
	}
}

// requiresRestart 判断配置路径是否需要重启
func requiresRestart(path string) bool {
	for _, p := range restartPaths {
		if path == p || strings.HasPrefix(path, p+".") {
			return true
		}
	}
	return false
}
