package utils

import (
  "strings"

  "github.com/rs/zerolog/log"
)

// ParseKeyValues parses a `key=value,key=value` list. Malformed entries are skipped.
func ParseKeyValues(s string) map[string]string {
  kv := map[string]string{}

  for _, entry := range strings.Split(s, ",") {
    if strings.TrimSpace(entry) == "" {
      continue
    }

    parts := strings.SplitN(entry, "=", 2)

    if len(parts) != 2 {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid key=value entry")
      continue
    }

    kv[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
  }

  return kv
}
