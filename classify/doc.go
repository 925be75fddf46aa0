// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package classify implements the passive classifier.

The classifier consists of two independently maintained datasets:

- [*CdnList] maps IP networks operated by CDN and hosting providers
to a [NetworkRecord] and answers with the longest matching prefix;

- [*RuBlacklist] contains the networks and domains blocked in Russia
and answers whether an address or a domain (or any of its ancestors)
is listed.

Both datasets are immutable snapshots published through an atomic
pointer. Update builds a new snapshot off to the side and swaps it
in one step, so concurrent readers never block on a rebuild and never
observe a mix of old and new entries.
*/
package classify
