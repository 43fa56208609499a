package security

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// selfSignedTestCert builds a minimal self-signed leaf certificate for
// tests, standing in for whatever CA issued it in a real deployment.
func selfSignedTestCert(t *testing.T, cn string) *tls.Certificate {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("CreateCertificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("ParseCertificate: %v", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
		Leaf:        leaf,
	}
}

func TestSaveLoadCertToFile(t *testing.T) {
	tmpCertDir := t.TempDir()
	cert := selfSignedTestCert(t, "rs1")

	if err := SaveCertToFile(cert, tmpCertDir); err != nil {
		t.Fatalf("SaveCertToFile: %v", err)
	}

	certPath := filepath.Join(tmpCertDir, "node.crt")
	keyPath := filepath.Join(tmpCertDir, "node.key")
	if _, err := os.Stat(certPath); os.IsNotExist(err) {
		t.Error("certificate file should exist")
	}
	if _, err := os.Stat(keyPath); os.IsNotExist(err) {
		t.Error("key file should exist")
	}

	loadedCert, err := LoadCertFromFile(tmpCertDir)
	if err != nil {
		t.Fatalf("LoadCertFromFile: %v", err)
	}
	if loadedCert.Leaf.Subject.CommonName != cert.Leaf.Subject.CommonName {
		t.Errorf("loaded cert CN mismatch: expected %s, got %s",
			cert.Leaf.Subject.CommonName, loadedCert.Leaf.Subject.CommonName)
	}
}

func TestSaveLoadCACertToFile(t *testing.T) {
	tmpCertDir := t.TempDir()
	caCert := selfSignedTestCert(t, "rangevault-ca")

	if err := SaveCACertToFile(caCert.Certificate[0], tmpCertDir); err != nil {
		t.Fatalf("SaveCACertToFile: %v", err)
	}

	caPath := filepath.Join(tmpCertDir, "ca.crt")
	if _, err := os.Stat(caPath); os.IsNotExist(err) {
		t.Error("CA certificate file should exist")
	}

	loadedCACert, err := LoadCACertFromFile(tmpCertDir)
	if err != nil {
		t.Fatalf("LoadCACertFromFile: %v", err)
	}
	if !loadedCACert.Equal(caCert.Leaf) {
		t.Error("loaded CA cert should match original")
	}
}

func TestCertExists(t *testing.T) {
	tmpDir := t.TempDir()

	if CertExists(tmpDir) {
		t.Error("certificate should not exist initially")
	}

	certPath := filepath.Join(tmpDir, "node.crt")
	keyPath := filepath.Join(tmpDir, "node.key")
	caPath := filepath.Join(tmpDir, "ca.crt")

	_ = os.WriteFile(certPath, []byte("cert"), 0600)
	_ = os.WriteFile(keyPath, []byte("key"), 0600)
	_ = os.WriteFile(caPath, []byte("ca"), 0600)

	if !CertExists(tmpDir) {
		t.Error("certificate should exist after creating files")
	}

	os.Remove(keyPath)

	if CertExists(tmpDir) {
		t.Error("certificate should not exist with missing key file")
	}
}

func TestCertNeedsRotation(t *testing.T) {
	tests := []struct {
		name     string
		notAfter time.Time
		needsRot bool
	}{
		{"expiring in 1 day", time.Now().Add(24 * time.Hour), true},
		{"expiring in 29 days", time.Now().Add(29 * 24 * time.Hour), true},
		{"expiring in 31 days", time.Now().Add(31 * 24 * time.Hour), false},
		{"expiring in 60 days", time.Now().Add(60 * 24 * time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cert := &x509.Certificate{NotAfter: tt.notAfter}
			if got := CertNeedsRotation(cert); got != tt.needsRot {
				t.Errorf("expected needsRotation=%v, got %v", tt.needsRot, got)
			}
		})
	}

	if !CertNeedsRotation(nil) {
		t.Error("nil certificate should need rotation")
	}
}

func TestGetCertExpiry(t *testing.T) {
	expectedExpiry := time.Now().Add(90 * 24 * time.Hour)
	cert := &x509.Certificate{NotAfter: expectedExpiry}

	if expiry := GetCertExpiry(cert); !expiry.Equal(expectedExpiry) {
		t.Errorf("expected expiry %v, got %v", expectedExpiry, expiry)
	}
	if !GetCertExpiry(nil).IsZero() {
		t.Error("nil certificate should return zero time")
	}
}

func TestGetCertTimeRemaining(t *testing.T) {
	expectedRemaining := 45 * 24 * time.Hour
	cert := &x509.Certificate{NotAfter: time.Now().Add(expectedRemaining)}

	remaining := GetCertTimeRemaining(cert)
	if diff := remaining - expectedRemaining; diff < -time.Second || diff > time.Second {
		t.Errorf("expected remaining ~%v, got %v (diff: %v)", expectedRemaining, remaining, diff)
	}
	if GetCertTimeRemaining(nil) != 0 {
		t.Error("nil certificate should return zero duration")
	}
}

func TestValidateCertChain(t *testing.T) {
	cert := selfSignedTestCert(t, "rs1")

	if err := ValidateCertChain(cert.Leaf, cert.Leaf); err != nil {
		t.Errorf("self-signed cert should validate against itself: %v", err)
	}
	if err := ValidateCertChain(nil, cert.Leaf); err == nil {
		t.Error("validation should fail with nil certificate")
	}
	if err := ValidateCertChain(cert.Leaf, nil); err == nil {
		t.Error("validation should fail with nil CA")
	}
}

func TestGetCertInfo(t *testing.T) {
	cert := selfSignedTestCert(t, "rs1")

	info := GetCertInfo(cert.Leaf)
	if info["subject"] != "rs1" {
		t.Errorf("expected subject 'rs1', got %v", info["subject"])
	}
	if info["is_ca"] != false {
		t.Error("leaf certificate should not be a CA")
	}

	nilInfo := GetCertInfo(nil)
	if _, hasError := nilInfo["error"]; !hasError {
		t.Error("info for nil certificate should contain error")
	}
}

func TestGetCertDir(t *testing.T) {
	tests := []struct {
		role     string
		location string
	}{
		{"coordinator", "node1"},
		{"rangeserver", "rs2"},
	}

	for _, tt := range tests {
		t.Run(tt.role+"-"+tt.location, func(t *testing.T) {
			certDir, err := GetCertDir(tt.role, tt.location)
			if err != nil {
				t.Fatalf("GetCertDir: %v", err)
			}

			expected := tt.role + "-" + tt.location
			if filepath.Base(certDir) != expected {
				t.Errorf("expected cert dir to end with %s, got %s", expected, certDir)
			}
		})
	}
}

func TestGetCLICertDir(t *testing.T) {
	certDir, err := GetCLICertDir()
	if err != nil {
		t.Fatalf("GetCLICertDir: %v", err)
	}
	if filepath.Base(certDir) != "cli" {
		t.Errorf("expected cert dir to end with 'cli', got %s", filepath.Base(certDir))
	}
}

func TestRemoveCerts(t *testing.T) {
	tmpDir := t.TempDir()

	_ = os.WriteFile(filepath.Join(tmpDir, "node.crt"), []byte("cert"), 0600)
	_ = os.WriteFile(filepath.Join(tmpDir, "node.key"), []byte("key"), 0600)

	if err := RemoveCerts(tmpDir); err != nil {
		t.Fatalf("RemoveCerts: %v", err)
	}
	if _, err := os.Stat(tmpDir); !os.IsNotExist(err) {
		t.Error("certificate directory should not exist after removal")
	}
}
