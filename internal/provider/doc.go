// Package provider defines the contract between import jobs and the comment
// scrapers that back them.
//
// Every scraper implements Provider. Optional capabilities (URL import, title
// lookup, keyword search, media id recovery) are separate interfaces that jobs
// discover with a type assertion. Registry maps provider names onto
// implementations and orders them by the configured display rank.
package provider
