package config

import "strings"

// 配置键中的 "." 映射为环境变量中的 "_"
var envKeyReplacer = strings.NewReplacer(".", "_")
