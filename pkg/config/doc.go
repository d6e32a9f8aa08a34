/*
Package config owns every configuration surface of the orchestrator.

Three concerns live here:

  - Store: a file-backed key/content store with atomic writes and
    timestamped backups. Keys are paths relative to the store root;
    escaping the root is rejected.
  - Manager: the platform (wrangler-style) configuration editor. It
    treats the active config as a run-exclusive working copy, generates
    persistent per-customer configs, and swaps them into place
    atomically with a backup of the previous active file.
  - Portfolio: the YAML portfolio file listing domains, dependencies,
    CORS origins, shared resources, and scheduling knobs
    (parallel_limit, batch_pause). Loading validates structure with
    go-playground/validator and referential consistency by hand;
    non-fatal findings come back as warnings.

All writes in this package go through write-to-temp-then-rename so a
crashed run never leaves a truncated config behind.
*/
package config
