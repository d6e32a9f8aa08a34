/*
Package resolver derives per-domain configuration from bare domain names.

Resolution is deterministic and side-effect free: a domain name maps to a
clean name, a worker name ({clean}-data-service), a database name, and
per-environment URLs. Results are cached by domain, so repeated
resolutions of the same name return the identical config.

Prerequisite validation distinguishes issues (malformed or
internationalized names, which make the domain undeployable) from
warnings (missing platform credentials, loopback targets, uncertain
multi-label TLDs). Root-domain derivation consults a configured
public-suffix list; without a matching entry a multi-label TLD is
reported as a warning rather than guessed silently.
*/
package resolver
