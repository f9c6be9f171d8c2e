// Package episodeid encodes and decodes catalog episode identities.
//
// An identity is the decimal concatenation of a fixed "25" prefix, the work id
// padded to six digits, the source order padded to two digits and the episode
// index padded to four digits. The resulting integer is stable for a given
// (work, source order, index) triple, which lets the reorder engine compute
// target keys without consulting the database.
//
// Track files are addressed by web path /danmaku/{work}/{episode}.xml; TrackPath
// builds that path from the same inputs.
package episodeid
