package server

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>SafeVision</title>
<style>
body { background: #0a1a2f; color: #e5e7eb; font-family: sans-serif; margin: 2em auto; max-width: 960px; }
button { background: #a3b18a; border: 0; border-radius: 10px; font-size: 16px; height: 3em; width: 100%; }
.row { display: flex; gap: 1em; }
.row figure { flex: 1; margin: 0; }
.row img { max-width: 100%; }
.warning { color: #fbbf24; }
a { color: #a3b18a; }
</style>
</head>
<body>
<h1>SafeVision</h1>
<p>Upload an image or choose a sample to see predictions.</p>
<hr>
<form id="form">
  <label><input type="radio" name="method" value="upload" checked> Upload image</label>
  <label><input type="radio" name="method" value="sample"> Use sample image</label>
  <p><input type="file" id="image" accept=".png,.jpg,.jpeg"></p>
  <p><select id="sample"><option value="">Select a sample image</option></select></p>
  <p id="warning" class="warning"></p>
  <button type="submit">Predict</button>
</form>
<div id="result"></div>
<script>
const warning = document.getElementById('warning');
fetch('/api/samples').then(r => r.json()).then(body => {
  if (body.warning) warning.textContent = body.warning;
  for (const name of body.samples || []) {
    const opt = document.createElement('option');
    opt.value = opt.textContent = name;
    document.getElementById('sample').appendChild(opt);
  }
});
document.getElementById('form').addEventListener('submit', async ev => {
  ev.preventDefault();
  const data = new FormData();
  let source;
  if (document.querySelector('input[name=method]:checked').value === 'upload') {
    const file = document.getElementById('image').files[0];
    if (!file) return;
    data.append('image', file);
    source = URL.createObjectURL(file);
  } else {
    const name = document.getElementById('sample').value;
    if (!name) return;
    data.append('sample', name);
    source = '/samples/' + encodeURIComponent(name);
  }
  const result = document.getElementById('result');
  result.textContent = 'Predicting...';
  const resp = await fetch('/api/predict', { method: 'POST', body: data });
  const body = await resp.json();
  if (!resp.ok) { result.textContent = body.error; return; }
  result.innerHTML = '<h4></h4><div class="row"><figure><img id="orig"><figcaption>Original Image</figcaption></figure>' +
    '<figure><img id="pred"><figcaption>Prediction Result</figcaption></figure></div><hr>' +
    '<p><strong>Download Results:</strong> <a id="dlimg">Predicted image</a> | <a id="dllbl">Labels</a></p><ul id="list"></ul>';
  result.querySelector('h4').textContent = 'Predicting for: ' + body.input;
  document.getElementById('orig').src = source;
  document.getElementById('pred').src = body.preview_url + '?t=' + Date.now();
  document.getElementById('dlimg').href = body.image_url;
  document.getElementById('dllbl').href = body.label_url;
  for (const d of body.detections) {
    const li = document.createElement('li');
    li.textContent = d.name + ' ' + (d.confidence || 0).toFixed(2);
    document.getElementById('list').appendChild(li);
  }
});
</script>
</body>
</html>
`
