package dto

import (
	"encoding/json"
	"encoding/xml"
)

type WebfingerResp struct {
	Subject string          `json:"subject"`
	Aliases []string        `json:"aliases,omitempty"`
	Links   []WebfingerLink `json:"links"`
}

type WebfingerLink struct {
	Rel      string `json:"rel"`
	Type     string `json:"type,omitempty"`
	Href     string `json:"href,omitempty"`
	Template string `json:"template,omitempty"`
}

// HostMeta is an XRD document served at /.well-known/host-meta.
type HostMeta struct {
	XMLName xml.Name       `xml:"XRD"`
	Links   []HostMetaLink `xml:"Link"`
}

type HostMetaLink struct {
	Rel      string `xml:"rel,attr"`
	Type     string `xml:"type,attr"`
	Template string `xml:"template,attr"`
}

// NodeInfoLinks is the index at /.well-known/nodeinfo.
type NodeInfoLinks struct {
	Links []NodeInfoLink `json:"links"`
}

type NodeInfoLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

// NodeInfo keeps the parts of a nodeinfo document we read; the document itself is stored raw.
type NodeInfo struct {
	Version  string          `json:"version"`
	Metadata json.RawMessage `json:"metadata"`
}

type NodeInfoMetadata struct {
	NodeName string `json:"nodeName"`
}
