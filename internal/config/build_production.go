//go:build production

package config

const productionBuild = true
