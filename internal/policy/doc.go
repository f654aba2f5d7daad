// Package policy caches robots.txt policies per origin.
//
// Policies live in memory for a TTL (24 hours by default) measured from the
// time they were fetched, with an optional persistent Store behind the memory
// tier so a restarted process does not refetch every origin. There is no
// background refresh: an expired policy is refetched by the next Get.
package policy
