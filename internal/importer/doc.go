// Package importer holds the job bodies that fetch comment tracks from
// providers into the catalog.
//
// Every import variant funnels into the same episode loop. Before each fetch
// the provider's rate budget is checked; an exhausted budget pauses the job
// until the window rolls over and then retries the same episode. Transport
// and unexpected failures are counted per episode and never abort the job,
// so a finished import reports partial success through its summary message.
// Each fetched episode is committed on its own: the catalog row, the track
// file and the fetch stamp land together or not at all.
package importer
