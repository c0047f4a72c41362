// Copyright (c) 2026 Kevin Zang (kevinzang). All rights reserved.
// Use of this source code is governed by the MIT License.
//
// MediaQueue - 媒体下载与转码任务管理工具

package queue

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Policy decides which URLs may be queued. Block expressions win over
// allow expressions; with no allow expressions every http(s) URL passes.
type Policy struct {
	allow []*regexp.Regexp
	block []*regexp.Regexp
}

// NewPolicy compiles the expressions. Empty expressions are ignored.
func NewPolicy(allow, block []string) (*Policy, error) {
	p := &Policy{}

	for _, exp := range allow {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid allow expression '%s': %w", exp, err)
		}
		p.allow = append(p.allow, re)
	}

	for _, exp := range block {
		exp = strings.TrimSpace(exp)
		if exp == "" {
			continue
		}
		re, err := regexp.Compile(exp)
		if err != nil {
			return nil, fmt.Errorf("invalid block expression '%s': %w", exp, err)
		}
		p.block = append(p.block, re)
	}

	return p, nil
}

// Check returns a *ValidationError when raw is not an acceptable URL.
func (p *Policy) Check(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("url", "%q cannot be parsed", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("url", "%q is not an HTTP/HTTPS URL", raw)
	}
	if u.Host == "" {
		return invalid("url", "%q has no host", raw)
	}
	if p == nil {
		return nil
	}

	for _, e := range p.block {
		if e.MatchString(raw) {
			return invalid("url", "%q is blocked", raw)
		}
	}
	if len(p.allow) == 0 {
		return nil
	}
	for _, e := range p.allow {
		if e.MatchString(raw) {
			return nil
		}
	}
	return invalid("url", "%q is not in the allow list", raw)
}
