// Package config loads the application configuration.
//
// Configuration comes from environment variables (optionally via a .env file)
// and is composed of the partial Config structs owned by each core package.
// Defaults are declared as struct tags and bound into Viper by reflection, so
// adding a setting means adding a tagged field, nothing else.
package config
