package config

import (
	"fmt"
	"strings"
)

type Validation struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

func (v *Validation) addErr(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}
func (v *Validation) addWarn(format string, args ...any) {
	v.Warnings = append(v.Warnings, fmt.Sprintf(format, args...))
}
func (v Validation) OK() bool { return len(v.Errors) == 0 }

// NormalizeAndValidate returns a normalized copy of cfg and what is wrong with it.
func NormalizeAndValidate(cfg Config) (Config, Validation) {
	var out = cfg
	var res Validation

	trimList := func(xs []string) []string {
		seen := map[string]bool{}
		var ys []string
		for _, x := range xs {
			x = strings.TrimSpace(x)
			if x == "" {
				continue
			}
			key := strings.ToLower(x)
			if seen[key] {
				continue
			}
			seen[key] = true
			ys = append(ys, x)
		}
		return ys
	}

	out.Email.SearchSubjectAny = trimList(out.Email.SearchSubjectAny)
	out.Email.Board = strings.TrimSpace(out.Email.Board)
	out.LLM.Model = strings.TrimSpace(out.LLM.Model)
	out.Fetch.UserAgent = strings.TrimSpace(out.Fetch.UserAgent)

	// ---- Validation rules ----

	if out.App.Port <= 0 || out.App.Port > 65535 {
		res.addErr("app.port must be 1..65535")
	}

	if out.Fetch.TimeoutSeconds <= 0 {
		res.addErr("fetch.timeout_seconds must be > 0")
	} else if out.Fetch.TimeoutSeconds > 120 {
		res.addWarn("fetch.timeout_seconds is very high (%d); a stuck site will hold a bulk worker that long.", out.Fetch.TimeoutSeconds)
	}
	if out.Fetch.MaxRedirects <= 0 {
		res.addErr("fetch.max_redirects must be > 0")
	}
	if out.Fetch.MaxBodyBytes < 64<<10 {
		res.addErr("fetch.max_body_bytes must be at least 65536")
	}

	if out.LLM.Model == "" {
		res.addErr("llm.model is required")
	}
	if out.LLM.MaxTokens <= 0 {
		res.addErr("llm.max_tokens must be > 0")
	} else if out.LLM.MaxTokens < 500 {
		res.addWarn("llm.max_tokens is low (%d); six fields with quotes may not fit.", out.LLM.MaxTokens)
	}
	// extraction is pinned to temperature 0
	if out.LLM.Temperature != 0 {
		res.addErr("llm.temperature must be 0")
	}
	if out.LLM.TextBudget <= 0 {
		res.addErr("llm.text_budget must be > 0")
	}
	if out.LLM.TimeoutSeconds <= 0 {
		res.addErr("llm.timeout_seconds must be > 0")
	}

	if out.Bulk.Concurrency <= 0 {
		res.addErr("bulk.concurrency must be > 0")
	} else if out.Bulk.Concurrency > 10 {
		res.addWarn("bulk.concurrency is %d; job sites and the model API may rate-limit you.", out.Bulk.Concurrency)
	}
	if out.Bulk.MaxURLs <= 0 {
		res.addErr("bulk.max_urls must be > 0")
	}
	if out.Bulk.HostRPS < 0 {
		res.addErr("bulk.host_rps must be >= 0 (0 disables the limit)")
	}

	// password not required here; it's in keychain
	if out.Email.Enabled {
		if strings.TrimSpace(out.Email.IMAPHost) == "" {
			res.addErr("email.imap_host is required when email.enabled=true")
		}
		if out.Email.IMAPPort == 0 {
			res.addErr("email.imap_port is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Username) == "" {
			res.addErr("email.username is required when email.enabled=true")
		}
		if strings.TrimSpace(out.Email.Mailbox) == "" {
			res.addErr("email.mailbox is required when email.enabled=true")
		}
		if out.Email.Board == "" {
			res.addErr("email.board is required when email.enabled=true")
		}
		if out.Email.PollMinutes <= 0 {
			res.addErr("email.poll_minutes must be > 0")
		} else if out.Email.PollMinutes < 5 {
			res.addWarn("email.poll_minutes is very low (%d) and may cause rate limits.", out.Email.PollMinutes)
		}
		if out.Email.MaxMessages <= 0 {
			res.addErr("email.max_messages must be > 0")
		}
		if len(out.Email.SearchSubjectAny) == 0 {
			res.addWarn("email.search_subject_any is empty; every unread message will be scanned for links.")
		}
	}

	return out, res
}
