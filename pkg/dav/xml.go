package dav

import (
	"io"
	"net/http"
	"strings"

	"github.com/beevik/etree"
	log "github.com/sirupsen/logrus"
)

const (
	nsDAV             = "DAV:"
	nsCalDAV          = "urn:ietf:params:xml:ns:caldav"
	nsCalendarServer  = "http://calendarserver.org/ns/"
	statusOK          = "HTTP/1.1 200 OK"
	statusNotFoundXML = "HTTP/1.1 404 Not Found"
)

func newMultistatus() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)
	ms := doc.CreateElement("d:multistatus")
	ms.CreateAttr("xmlns:d", nsDAV)
	ms.CreateAttr("xmlns:c", nsCalDAV)
	ms.CreateAttr("xmlns:cs", nsCalendarServer)
	return doc, ms
}

// addResponse appends a response element for href and returns its d:prop
// element, ready to be filled with property values.
func addResponse(ms *etree.Element, href string) *etree.Element {
	resp := ms.CreateElement("d:response")
	resp.CreateElement("d:href").SetText(href)
	propstat := resp.CreateElement("d:propstat")
	prop := propstat.CreateElement("d:prop")
	propstat.CreateElement("d:status").SetText(statusOK)
	return prop
}

func addNotFoundResponse(ms *etree.Element, href string) {
	resp := ms.CreateElement("d:response")
	resp.CreateElement("d:href").SetText(href)
	resp.CreateElement("d:status").SetText(statusNotFoundXML)
}

func writeMultistatus(w http.ResponseWriter, doc *etree.Document) {
	out, err := doc.WriteToString()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", `application/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusMultiStatus)
	if _, err := io.WriteString(w, out); err != nil {
		log.Errorf("failed to write multistatus response: %v", err)
	}
}

// findElementIgnoreNS finds the first descendant element with the given local
// tag name, regardless of namespace prefix.
func findElementIgnoreNS(parent *etree.Element, tag string) *etree.Element {
	for _, child := range parent.ChildElements() {
		if strings.EqualFold(child.Tag, tag) {
			return child
		}
		if found := findElementIgnoreNS(child, tag); found != nil {
			return found
		}
	}
	return nil
}

// findElementsIgnoreNS collects all descendant elements with the given local
// tag name.
func findElementsIgnoreNS(parent *etree.Element, tag string) []*etree.Element {
	var found []*etree.Element
	for _, child := range parent.ChildElements() {
		if strings.EqualFold(child.Tag, tag) {
			found = append(found, child)
		}
		found = append(found, findElementsIgnoreNS(child, tag)...)
	}
	return found
}

func parseMkCalendarName(body []byte) (string, bool) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil || doc.Root() == nil {
		return "", false
	}
	name := findElementIgnoreNS(doc.Root(), "displayname")
	if name == nil {
		return "", false
	}
	return strings.TrimSpace(name.Text()), true
}
