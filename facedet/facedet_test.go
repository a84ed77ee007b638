package facedet

import "testing"

func TestNewCascadeValidation(t *testing.T) {
	if _, err := NewCascade(Config{}); err == nil {
		t.Error("NewCascade accepted an empty cascade path")
	}
	if _, err := NewCascade(Config{CascadeFile: "model.xml", ScaleFactor: 0.9}); err == nil {
		t.Error("NewCascade accepted scale factor <= 1.0")
	}
	if _, err := NewCascade(Config{CascadeFile: "/nonexistent/cascade.xml"}); err == nil {
		t.Error("NewCascade accepted a missing cascade file")
	}
}
