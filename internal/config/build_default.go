//go:build !production

package config

const productionBuild = false
