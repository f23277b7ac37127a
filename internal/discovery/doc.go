// Package discovery finds lighting bridges on the local network.
//
// Finding a bridge on an unknown home network is unreliable by nature, so
// three independent strategies run concurrently and their results are
// merged:
//
//   - SSDP multicast probe: M-SEARCH bursts to 239.255.255.250:1900 with
//     three search targets, then a listening window for replies carrying
//     bridge markers.
//   - Subnet enumeration: locally attached /24 prefixes swept host by
//     host, plus a short list of historically common router-default
//     subnets.
//   - Cloud lookup: one request to the vendor's public discovery endpoint,
//     which maps the caller's public IP to known bridges.
//
// A strategy sighting alone never produces a result. Every candidate is
// confirmed through the injected Validator (an identity-reporting probe of
// the address) before it appears in the session output, and results are
// deduplicated by the bridge-reported id - the same bridge seen by all
// three strategies yields exactly one entry.
//
// # Failure model
//
// Strategy failures are swallowed: a strategy that cannot even start
// contributes zero candidates and the session carries on. "No bridges
// found" is an empty slice, not an error. The session never exceeds the
// configured ceiling regardless of how many candidates are pending.
//
// # Usage
//
//	orchestrator := discovery.New(cfg.Discovery, validator)
//	orchestrator.SetLogger(log)
//
//	bridges := orchestrator.Discover(ctx)
//	if len(bridges) == 0 {
//	    // surface "no bridge found" to the user
//	}
package discovery
