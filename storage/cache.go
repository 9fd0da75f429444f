package storage

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// SaveGob serialisiert einen Wert gzip-komprimiert als gob-Blob. Das
// Zielverzeichnis wird bei Bedarf angelegt; geschrieben wird über eine
// temporäre Datei und Rename, damit nie ein halber Blob liegen bleibt.
func SaveGob(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache-verzeichnis anlegen fehlgeschlagen: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("cache-tempdatei anlegen fehlgeschlagen: %w", err)
	}
	defer os.Remove(tmp.Name())

	gz := gzip.NewWriter(tmp)
	if err := gob.NewEncoder(gz).Encode(value); err != nil {
		tmp.Close()
		return fmt.Errorf("cache kodieren fehlgeschlagen: %w", err)
	}
	if err := gz.Close(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadGob lädt einen mit SaveGob geschriebenen Blob in value. Jeder
// Fehler (fehlende Datei, kaputtes gzip, gob-Mismatch) kommt als Fehler
// zurück; der Aufrufer entscheidet, ob das ein Cache-Miss ist.
func LoadGob(path string, value any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("cache-datei %s ist kein gültiges gzip: %w", path, err)
	}
	defer gz.Close()

	if err := gob.NewDecoder(gz).Decode(value); err != nil {
		return fmt.Errorf("cache-datei %s dekodieren fehlgeschlagen: %w", path, err)
	}
	return nil
}
